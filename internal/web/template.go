package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/hazard-sentinel/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
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
	"seconds": func(d time.Duration) string {
		return d.Truncate(time.Second).String()
	},
	"cm": func(v *float64) string {
		return fmt.Sprintf("%.2f cm", *v)
	},
	"stamp": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Hazard Sentinel{{if .Config.Node}} ({{.Config.Node}}){{end}}</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 30%; }
.IDLE { color: green; }
.WATCHING { color: orange; font-weight: bold; }
.ALERTING { color: red; font-weight: bold; }
.on { color: red; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.error { color: red; }
</style>
</head>
<body>
<h1>Hazard Sentinel{{if .Config.Node}} &middot; {{.Config.Node}}{{end}}</h1>

<h2>Sensors</h2>
<table>
<tr><th>Sensor</th><th>State</th><th>Reading</th><th>Episode</th></tr>
{{range .Sensors}}<tr>
<td>{{.ID}} ({{.Hazard}})</td>
<td class="{{.State}}">{{.State}}</td>
<td>{{if .LastError}}<span class="error">{{.LastError}}</span>{{else if .LastReading.Hazard}}detected{{else}}clear{{end}}</td>
<td>{{if .InEpisode}}{{seconds .Episode.Duration}}{{if .Episode.Confirmed}}, confirmed{{end}}{{else}}-{{end}}</td>
</tr>
{{else}}<tr><td colspan="4">no readings yet</td></tr>
{{end}}</table>

<h2>Outputs</h2>
<table>
<tr><th>Buzzer</th><td class="{{.Buzzer}}">{{.Buzzer}}</td></tr>
<tr><th>LED</th><td class="{{.LED}}">{{.LED}}</td></tr>
<tr><th>Distance</th><td>{{if .DistanceCM}}{{cm .DistanceCM}} at {{stamp .DistanceAt}}{{else}}unknown{{end}}</td></tr>
</table>

<h2>Alerts</h2>
<table>
<tr><th>Observer</th><td>{{.Config.ObserverURL}}</td></tr>
<tr><th>Delivered</th><td>{{.Dispatch.Delivered}}</td></tr>
<tr><th>Failed</th><td>{{.Dispatch.Failed}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{stamp .StartTime}}</td></tr>
{{range .Config.Sensors}}<tr><th>{{.ID}}</th><td>poll {{.PollMs}}ms, sustain {{.SustainMs}}ms, buzzer {{.BuzzerPulseMs}}ms</td></tr>
{{end}}<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/status.json">JSON</a> &middot; <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
