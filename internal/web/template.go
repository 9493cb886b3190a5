package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/remoteio/internal/status"
)

var funcs = template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}

var (
	monitorTmpl = template.Must(template.New("monitor").Funcs(funcs).Parse(monitorHTML))
	setupTmpl   = template.Must(template.New("setup").Funcs(funcs).Parse(setupHTML))
)

const style = `<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; font-weight: bold; }
.disconnected { color: red; }
.pending { color: orange; }
label { display: block; margin-top: .6em; }
input { width: 100%; padding: 4px; }
</style>`

const monitorHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>RemoteIO {{orDash .Identity.DeviceID}}</title>
` + style + `
</head>
<body>
<h1>RemoteIO {{orDash .Identity.DeviceID}}</h1>

<h2>Connection</h2>
<table>
<tr><th>State</th><td id="state" class="{{if eq .Connection.State "CONNECTED"}}connected{{else if eq .Connection.State "INITIALIZATION"}}pending{{else}}disconnected{{end}}">{{.Connection.State}}</td></tr>
<tr><th>Authenticated</th><td>{{yesno .Connection.Authenticated}}{{if .Connection.VerifyState}} ({{.Connection.VerifyState}}){{end}}</td></tr>
<tr><th>Joined</th><td>{{yesno .Connection.Joined}}</td></tr>
<tr><th>Local mode</th><td>{{yesno .Connection.LocalMode}}</td></tr>
<tr><th>Reconnect failures</th><td>{{.Connection.ReconnectFailures}}</td></tr>
{{if .Connection.Provisioning}}<tr><th>Provisioning</th><td class="pending">waiting for credentials</td></tr>{{end}}
</table>

<h2>Network</h2>
<table>
<tr><th>SSID</th><td>{{orDash .Network.SSID}}</td></tr>
<tr><th>Link</th><td class="{{if .Network.LinkUp}}connected{{else}}disconnected{{end}}">{{if .Network.LinkUp}}up{{else}}down{{end}}</td></tr>
<tr><th>IP</th><td>{{orDash .Network.IP}}</td></tr>
<tr><th>MAC</th><td>{{orDash .Network.MAC}}</td></tr>
<tr><th>Hostname</th><td>{{orDash .Identity.Hostname}}</td></tr>
</table>

<h2>Anchor</h2>
<table>
<tr><th>Anchored</th><td>{{yesno .Anchor.Anchored}}{{if .Anchor.Peer}} via {{.Anchor.Peer}}{{end}}</td></tr>
<tr><th>Relaying for</th><td>{{orDash .Anchor.AnchoredPeer}}</td></tr>
</table>

<h2>References</h2>
<table>
<tr><th>Ref</th><td><b>Pin / Type / Value</b></td></tr>
{{range .Refs}}<tr><th>{{.Ref}}</th><td>{{if ge .Pin 0}}{{.Pin}}{{else}}-{{end}} / {{.Direction}}{{if .Sampling}} ({{.Sampling}}){{end}} / {{orDash .Value}}</td></tr>
{{else}}<tr><td colspan="2">no references declared</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Company</th><td>{{orDash .Identity.CompanyName}}</td></tr>
<tr><th>Model</th><td>{{.Identity.Model}} {{.Identity.Version}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Queue</th><td>{{.Queue.Drained}} drained, {{.Queue.Dropped}} dropped (capacity {{.Queue.Capacity}})</td></tr>
<tr><th>Scheduled events</th><td>{{.SchedulePending}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Cycle</th><td>{{.Config.CycleMs}}ms</td></tr>
</table>

<p><a href="/monitor-data">JSON</a></p>
<form method="post" action="/monitor-reset" onsubmit="return confirm('Erase credentials and reboot?')">
<button type="submit">Reset credentials</button>
</form>
</body>
</html>
`

const setupHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>RemoteIO setup</title>
` + style + `
</head>
<body>
<h1>RemoteIO setup</h1>
<form method="get" action="/get">
<label>Wi-Fi network <input name="ssid" required></label>
<label>Wi-Fi password <input name="password" type="password" required></label>
<label>Company <input name="companyName" required></label>
<label>Device ID <input name="deviceId" required></label>
<p><button type="submit">Save and reboot</button></p>
</form>
</body>
</html>
`

type pageData struct {
	status.Snapshot
	Uptime time.Duration
}

func renderMonitor(w io.Writer, snap status.Snapshot) {
	monitorTmpl.Execute(w, pageData{Snapshot: snap, Uptime: snap.Uptime()}) //nolint:errcheck
}

func renderSetup(w io.Writer, snap status.Snapshot) {
	setupTmpl.Execute(w, pageData{Snapshot: snap, Uptime: snap.Uptime()}) //nolint:errcheck
}
