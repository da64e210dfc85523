package handlers

import (
	"fmt"
	"html"
	"net/http"
	"slices"
	"strings"

	"github.com/dimitrije/starter-api/internal/middleware"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/m1z23r/drift/pkg/drift"
)

// PageHandler renders the server-side pages: the sign-in form and the
// account page behind middleware.GuardPage.
type PageHandler struct {
	providers []session.ProviderTag
}

func NewPageHandler(providers []session.ProviderTag) *PageHandler {
	sorted := slices.Clone(providers)
	slices.Sort(sorted)
	return &PageHandler{providers: sorted}
}

const pageStyle = `
        body { font-family: system-ui, -apple-system, sans-serif; background: #f9fafb; color: #374151; margin: 0; padding: 40px 20px; }
        .container { max-width: 420px; margin: 0 auto; background: #fff; border: 1px solid #e5e7eb; border-radius: 8px; padding: 32px; }
        h1 { font-size: 20px; margin: 0 0 16px 0; color: #111827; }
        input { width: 100%; padding: 8px; margin-bottom: 12px; border: 1px solid #d1d5db; border-radius: 4px; box-sizing: border-box; }
        button { background: #374151; color: #fff; border: none; border-radius: 4px; padding: 8px 16px; cursor: pointer; margin: 0 8px 8px 0; }
        dt { font-weight: 600; margin-top: 8px; }
        dd { margin: 0; color: #6b7280; }`

func (h *PageHandler) SignIn(c *drift.Context) {
	var buttons strings.Builder
	for _, p := range h.providers {
		fmt.Fprintf(&buttons, `<button type="button" onclick="social('%s')">Continue with %s</button>`, p, p)
	}

	page := `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Sign in</title>
    <style>` + pageStyle + `
    </style>
</head>
<body>
    <div class="container">
        <h1>Sign in</h1>
        <form id="login">
            <input type="email" id="email" placeholder="Email" required>
            <input type="password" id="password" placeholder="Password" required>
            <button type="submit">Sign in</button>
        </form>
        <div>` + buttons.String() + `</div>
        <p id="result"></p>
    </div>
    <script>
        var next = new URLSearchParams(window.location.search).get('next') || '/account';
        function finish(tokens) {
            document.cookie = 'access_token=' + tokens.access_token + '; path=/; max-age=' + tokens.expires_in + '; samesite=lax';
            window.location.href = next;
        }
        function fail(body) { document.getElementById('result').textContent = body.error || 'sign-in failed'; }
        document.getElementById('login').addEventListener('submit', function(e) {
            e.preventDefault();
            fetch('/api/v1/auth/login', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ email: document.getElementById('email').value, password: document.getElementById('password').value })
            }).then(function(r) { return r.json(); }).then(function(body) { body.tokens ? finish(body.tokens) : fail(body); });
        });
        function social(provider) {
            fetch('/api/v1/auth/' + provider + '/consent').then(function(r) { return r.json(); }).then(function(body) {
                window.open(body.url, 'signin', 'width=500,height=700');
            });
        }
        window.addEventListener('message', function(e) {
            if (e.origin !== window.location.origin || !e.data || !e.data.redirect) { return; }
            var code = new URL(e.data.redirect).searchParams.get('code');
            if (!code) { return fail({ error: 'sign-in failed' }); }
            fetch('/api/v1/auth/exchange', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ code: code })
            }).then(function(r) { return r.json(); }).then(function(body) { body.tokens ? finish(body.tokens) : fail(body); });
        });
    </script>
</body>
</html>`

	_ = c.HTML(http.StatusOK, page)
}

// Account shows the merged session user. It only runs for Ready sessions.
func (h *PageHandler) Account(c *drift.Context) {
	user := middleware.GetSessionUser(c)
	if user == nil {
		c.Unauthorized("not authenticated")
		return
	}

	plan := "none"
	if user.PlanID != "" {
		plan = user.PlanID
		if !user.PlanIsActive {
			plan += " (inactive)"
		}
	}

	var fields strings.Builder
	keys := make([]string, 0, len(user.Fields))
	for k := range user.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&fields, "<dt>%s</dt><dd>%s</dd>", html.EscapeString(k), html.EscapeString(fmt.Sprint(user.Fields[k])))
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Account</title>
    <style>%s
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <dl>
            <dt>Email</dt><dd>%s</dd>
            <dt>Signed in with</dt><dd>%s</dd>
            <dt>Plan</dt><dd>%s</dd>
            %s
        </dl>
    </div>
</body>
</html>`, pageStyle, html.EscapeString(user.Name), html.EscapeString(user.Email),
		html.EscapeString(user.Provider.String()), html.EscapeString(plan), fields.String())

	_ = c.HTML(http.StatusOK, page)
}
