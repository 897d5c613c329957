package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/onoff/internal/led"
	"github.com/sweeney/onoff/internal/status"
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
	"lower": func(m led.Mode) string { return strings.ToLower(m.String()) },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Power Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.flash, .flash_inverted { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Power Controller</h1>

<h2>State</h2>
<table>
<tr><th>Power</th><td id="power" class="{{if .Power}}on{{else}}off{{end}}">{{if .Power}}ON{{else}}OFF{{end}}</td></tr>
<tr><th>Button</th><td>{{if .Board.Button}}pressed{{else}}released{{end}}</td></tr>
<tr><th>Off signal</th><td>{{if .Board.Off}}asserted{{else}}clear{{end}}</td></tr>
<tr><th>State write pending</th><td>{{if .Board.NVPending}}yes{{else}}no{{end}}</td></tr>
{{with .LastEvent}}<tr><th>Last event</th><td>{{.Type}} ({{.Reason}}) at tick {{.Tick}}</td></tr>{{end}}
</table>

<h2>LEDs</h2>
<table>
{{range .LEDs}}<tr><th>{{.Channel}}</th><td class="{{lower .Mode}}">{{.Mode}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}none{{end}}</td></tr>
</table>

<h2>Event Counts</h2>
<table>
<tr><th>Power on</th><td>{{.Counts.PowerOn}}</td></tr>
<tr><th>Power off</th><td>{{.Counts.PowerOff}}</td></tr>
<tr><th>Cancelled presses</th><td>{{.Counts.Cancelled}}</td></tr>
<tr><th>Off signals</th><td>{{.Counts.OffSignal}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Ticks</th><td>{{.Board.Ticks}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickUs}}µs</td></tr>
<tr><th>PWM period</th><td>{{.Config.PWMUs}}µs</td></tr>
<tr><th>Press / cancel</th><td>{{.Config.Timing.ButtonPress}} / {{.Config.Timing.ButtonCancel}} ticks</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

type ledRow struct {
	Channel led.Channel
	Mode    led.Mode
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		LEDs   []ledRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	for ch := led.Channel(0); ch < led.NumChannels; ch++ {
		data.LEDs = append(data.LEDs, ledRow{Channel: ch, Mode: snap.Board.LEDs[ch]})
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.WithError(err).Warn("web: render index")
	}
}
