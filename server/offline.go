package server

// offlineDocument is the navigational fallback served when both network and
// cache fail. It is also precached into every cache generation on install.
const offlineDocument = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Parley - Offline</title>
  <style>
    body { font-family: system-ui, sans-serif; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; background: #f5f5f5; color: #333; }
    main { text-align: center; padding: 2rem; }
    h1 { font-size: 1.5rem; }
    p { color: #666; }
  </style>
</head>
<body>
  <main>
    <h1>You are offline</h1>
    <p>Your messages are saved locally and will be sent when the connection returns.</p>
  </main>
</body>
</html>
`
