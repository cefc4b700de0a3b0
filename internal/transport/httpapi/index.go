package httpapi

// indexHTML is the operator control page. Opaque to the core: it only
// talks to the endpoints registered in Handler. Note the ARM button doubles as the
// e-stop release.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
<title>Tracked Robot</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
body { font-family: Arial, sans-serif; text-align: center; padding: 20px; }
button { padding: 20px; margin: 10px; font-size: 18px; }
#estop { background: #c0392b; color: #fff; }
#state { font-weight: bold; }
input[type=range] { width: 60%; }
</style>
</head>
<body>
<h1>Tracked Robot Control</h1>
<p>State: <span id="state">?</span></p>
<button id="arm" onclick="post('/arm')">ARM / CLEAR E-STOP</button>
<button id="estop" onclick="post('/estop')">E-STOP</button>
<h2>Manual Control</h2>
<p>Throttle: <input id="t" type="range" min="-100" max="100" value="0"></p>
<p>Steering: <input id="s" type="range" min="-100" max="100" value="0"></p>
<p><label><input id="slow" type="checkbox"> slow mode</label></p>
<script>
var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = function (ev) {
  var st = JSON.parse(ev.data);
  document.getElementById('state').textContent = st.armed ? 'ARMED' : 'disarmed';
};
function post(path) { fetch(path, {method: 'POST'}); }
function send() {
  var msg = {
    throttle: document.getElementById('t').value / 100,
    steering: document.getElementById('s').value / 100,
    slow_mode: document.getElementById('slow').checked
  };
  if (ws.readyState === WebSocket.OPEN) {
    ws.send(JSON.stringify(msg));
  } else {
    fetch('/control', {
      method: 'POST',
      headers: {'Content-Type': 'application/json'},
      body: JSON.stringify(msg)
    });
  }
}
setInterval(send, 100);
</script>
</body>
</html>
`
