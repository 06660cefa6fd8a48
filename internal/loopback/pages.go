package loopback

import "html"

const forwardPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Completing login</title></head>
<body>
<p>Completing login&hellip;</p>
<script>
(function () {
  var parts = [];
  if (window.location.search.length > 1) parts.push(window.location.search.substring(1));
  if (window.location.hash.length > 1) parts.push(window.location.hash.substring(1));
  window.location.replace("/complete?" + parts.join("&"));
})();
</script>
<noscript>JavaScript is required to finish logging in.</noscript>
</body>
</html>`

func renderResult(title, message string) string {
	return `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>` + html.EscapeString(title) + `</title></head>
<body>
<h1>` + html.EscapeString(title) + `</h1>
<p>` + html.EscapeString(message) + `</p>
</body>
</html>`
}
