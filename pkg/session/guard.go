package session

import "sync"

type Decision int

const (
	ShowLoading Decision = iota
	Redirect
	Render
)

func (d Decision) String() string {
	switch d {
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	default:
		return "loading"
	}
}

// Guard gates a protected view on the session state. It asks for a
// redirect once per transition into SignedOut and shows the loading
// placeholder otherwise until the user is Ready.
type Guard struct {
	SignInPath string

	mu        sync.Mutex
	signedOut bool
}

func NewGuard(signInPath string) *Guard {
	return &Guard{SignInPath: signInPath}
}

func (g *Guard) Observe(s State) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s.IsSignedOut() {
		if g.signedOut {
			return ShowLoading
		}
		g.signedOut = true
		return Redirect
	}

	g.signedOut = false
	if s.IsReady() {
		return Render
	}
	return ShowLoading
}

// Bind feeds every state published by c through the guard and calls
// onRedirect on each redirect decision.
func (g *Guard) Bind(c *Composer, onRedirect func(path string)) (unsubscribe func()) {
	return c.Subscribe(func(s State) {
		if g.Observe(s) == Redirect {
			onRedirect(g.SignInPath)
		}
	})
}
