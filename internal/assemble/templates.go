package assemble

import "html/template"

var shellTemplate = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Subject}}</title>
<style type="text/css">
  body { margin: 0; padding: 0; background-color: {{.Template.BackgroundColor}}; }
  .container { max-width: {{.Template.MaxWidth}}; margin: 0 auto; font-family: {{.Template.FontFamily}}; color: {{.Template.TextColor}}; }
  .header { background-color: {{.Template.HeaderColor}}; color: #ffffff; padding: 24px; text-align: center; }
  .section { background-color: #ffffff; border: 1px solid {{.Template.BorderColor}}; border-radius: 8px; margin: 16px; padding: 16px; }
  .section h2 { margin-top: 0; font-size: 18px; }
  a { color: {{.Template.LinkColor}}; }
  .story { margin-bottom: 20px; }
  .story h3 { margin: 0 0 6px 0; font-size: 16px; }
  .story p { margin: 0; line-height: 1.5; }
  .meta { color: #64748b; font-size: 13px; }
  .featured { border-left: 4px solid {{.Template.HeaderColor}}; padding-left: 10px; }
  .footer { text-align: center; color: #64748b; font-size: 12px; padding: 16px; }
  img.story-img { max-width: 100%; border-radius: 6px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>The Daily Gazette</h1>
    <p>{{.Date}}</p>
  </div>
{{range .Sections}}{{.}}
{{end}}  <div class="footer">
    <p>You are receiving this because you subscribed to the daily newsletter.</p>
  </div>
</div>
</body>
</html>
`))

var articlesTemplate = template.Must(template.New("articles").Parse(`  <div class="section">
    <h2>Today's Top Stories</h2>
{{range .}}    <div class="story">
      <h3>{{.Headline}}</h3>
{{if .ImageURL}}      <img class="story-img" src="{{.ImageURL}}" alt="">
{{end}}      <p>{{.Content}}</p>
    </div>
{{end}}  </div>`))

var eventsTemplate = template.Must(template.New("events").Parse(`  <div class="section">
    <h2>Happening Around Town</h2>
{{range .}}    <p class="meta"><strong>{{.Day}}</strong></p>
{{range .Items}}    <div class="story{{if .Featured}} featured{{end}}">
      <h3>{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</h3>
      <p class="meta">{{.When}}{{if .Location}} &middot; {{.Location}}{{end}}</p>
{{if .Description}}      <p>{{.Description}}</p>
{{end}}    </div>
{{end}}{{end}}  </div>`))

var weatherTemplate = template.Must(template.New("weather").Parse(`  <div class="section">
    <h2>Weather</h2>
{{range .}}    <div class="story">
      <p><strong>{{.Date}}</strong> {{.Summary}} &mdash; High {{printf "%.0f" .HighTempF}}&deg;F / Low {{printf "%.0f" .LowTempF}}&deg;F{{if gt .SnowIn 0.0}}, {{printf "%.1f" .SnowIn}}" snow{{end}}</p>
    </div>
{{end}}  </div>`))

var roadWorkTemplate = template.Must(template.New("roadwork").Parse(`  <div class="section">
    <h2>Road Work</h2>
{{range .}}    <div class="story">
      <p><strong>{{.Road}}</strong>{{if .Details}} &mdash; {{.Details}}{{end}}</p>
    </div>
{{end}}  </div>`))

var diningTemplate = template.Must(template.New("dining").Parse(`  <div class="section">
    <h2>Dining Deals</h2>
{{range .}}    <div class="story">
      <h3>{{if .URL}}<a href="{{.URL}}">{{.Restaurant}}</a>{{else}}{{.Restaurant}}{{end}}</h3>
      <p>{{.Deal}}</p>
    </div>
{{end}}  </div>`))

var vrboTemplate = template.Must(template.New("vrbo").Parse(`  <div class="section">
    <h2>Featured Getaways</h2>
{{range .}}    <div class="story">
      <h3>{{if .URL}}<a href="{{.URL}}">{{.Title}}</a>{{else}}{{.Title}}{{end}}</h3>
      <p class="meta">Sleeps {{.Sleeps}}{{if .Nightly}} &middot; {{.Nightly}}{{end}}</p>
    </div>
{{end}}  </div>`))

var pollTemplate = template.Must(template.New("poll").Parse(`  <div class="section">
    <h2>Reader Poll</h2>
    <p><strong>{{.Question}}</strong></p>
{{range .Options}}    <p>&#9744; {{.Label}}</p>
{{end}}  </div>`))

var adsTemplate = template.Must(template.New("ads").Parse(`{{range .}}  <div class="section">
    <p class="meta">Sponsored by {{.Advertiser}}</p>
    <h3>{{if .LinkURL}}<a href="{{.LinkURL}}">{{.Headline}}</a>{{else}}{{.Headline}}{{end}}</h3>
{{if .ImageURL}}    <img class="story-img" src="{{.ImageURL}}" alt="">
{{end}}    <p>{{.Body}}</p>
  </div>
{{end}}`))
