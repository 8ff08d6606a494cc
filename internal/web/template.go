package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/alarm-gateway/internal/alarm"
	"github.com/sweeney/alarm-gateway/internal/logic"
	"github.com/sweeney/alarm-gateway/internal/status"
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
	"pulseClass": func(s logic.PulseState) string {
		switch s {
		case logic.PulseArmed:
			return "armed"
		case logic.PulseUnarmed:
			return "off"
		case logic.PulseAlarm:
			return "alarm"
		default:
			return "unknown"
		}
	},
	"pulseState": func(s logic.PulseState) string {
		if s == logic.PulseNone {
			return "NONE"
		}
		return string(s)
	},
	"bySource": func(c alarm.Counts, src string) int {
		return c.BySource[alarm.Source(src)]
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Alarm Gateway</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.alarm, .active { color: red; font-weight: bold; }
.armed { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Alarm Gateway</h1>

<h2>Contacts</h2>
<table>
{{range .Contacts}}<tr><th>Contact {{.ID}}</th><td class="{{if .Active}}active{{else}}off{{end}}">{{if .Active}}ACTIVE{{else}}idle{{end}}{{if .Latched}} (latched){{end}}</td></tr>
{{else}}<tr><td>no contact lines</td></tr>
{{end}}</table>

{{if .Pulse.Enabled}}<h2>Status Line</h2>
<table>
<tr><th>State</th><td class="{{pulseClass .Pulse.State}}">{{pulseState .Pulse.State}}</td></tr>
<tr><th>Last width</th><td>{{.Pulse.WidthMicros}}us</td></tr>
<tr><th>Silence alarms</th><td>{{.Pulse.Alarms}}</td></tr>
{{if .Pulse.Dropped}}<tr><th>Dropped notifications</th><td>{{.Pulse.Dropped}}</td></tr>{{end}}
</table>
{{end}}
{{if .Serial.Enabled}}<h2>Serial</h2>
<table>
<tr><th>Port</th><td class="{{if .Serial.Open}}connected{{else}}disconnected{{end}}">{{.Config.SerialPort}} {{if .Serial.Open}}open{{else}}closed{{end}}</td></tr>
<tr><th>Mode</th><td>{{.Config.SerialMode}}</td></tr>
<tr><th>Frames</th><td>{{.Serial.Frames}}</td></tr>
<tr><th>Discarded</th><td>{{.Serial.Discarded}}</td></tr>
{{if .Serial.LastDevice}}<tr><th>Last device</th><td>{{.Serial.LastDevice}}</td></tr>{{end}}
</table>
{{end}}
<h2>Dispatch</h2>
<table>
<tr><th>Dispatched</th><td>{{.Counts.Dispatched}}</td></tr>
<tr><th>Contacts</th><td>{{bySource .Counts "contact"}}</td></tr>
<tr><th>Status line</th><td>{{bySource .Counts "pulse"}}</td></tr>
<tr><th>Serial</th><td>{{bySource .Counts "serial"}}</td></tr>
<tr><th>Missing config</th><td>{{.Counts.Missing}}</td></tr>
<tr><th>Sink failures</th><td>{{.Counts.Failed}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Queued</th><td>{{.MQTTQueued}} (dropped {{.MQTTDropped}})</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Watchdog</th><td>{{.Config.WatchdogMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{.Config.HeartbeatMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/events.json">Recent events</a></p>
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
