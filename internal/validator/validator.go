package validator

import (
	"fmt"
	"net/http"

	"github.com/telhawk-systems/cspreport/internal/models"
	"github.com/telhawk-systems/cspreport/pkg/csp"
)

// Rejection is returned by a guard the request does not pass.
type Rejection struct {
	Reason     string
	StatusCode int
}

func (r *Rejection) Error() string {
	return r.Reason
}

// Guard defines a single structural check over an inbound request.
type Guard interface {
	Check(req *models.InboundRequest) *Rejection
}

// GuardFunc adapts a function to Guard.
type GuardFunc func(req *models.InboundRequest) *Rejection

// Check calls f(req).
func (f GuardFunc) Check(req *models.InboundRequest) *Rejection {
	return f(req)
}

// Chain applies a list of guards sequentially.
type Chain struct {
	guards []Guard
}

// NewChain constructs a guard chain.
func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// Default returns the report-uri guard sequence: method, content type, body.
func Default() *Chain {
	return NewChain(MethodGuard(), ContentTypeGuard(), BodyGuard())
}

// Validate executes guards in order and returns the first rejection, or nil.
func (c *Chain) Validate(req *models.InboundRequest) *Rejection {
	if c == nil {
		return nil
	}
	for _, g := range c.guards {
		if rej := g.Check(req); rej != nil {
			return rej
		}
	}
	return nil
}

// Outcome wraps Validate in a pipeline outcome. ok is false on rejection.
func (c *Chain) Outcome(req *models.InboundRequest) (models.Outcome, bool) {
	if rej := c.Validate(req); rej != nil {
		return models.Rejected(rej.Reason, rej.StatusCode), false
	}
	return models.Outcome{}, true
}

// MethodGuard accepts only POST, matched case-sensitively.
func MethodGuard() Guard {
	return GuardFunc(func(req *models.InboundRequest) *Rejection {
		if req.Method != http.MethodPost {
			return &Rejection{Reason: "Method must be POST", StatusCode: http.StatusMethodNotAllowed}
		}
		return nil
	})
}

// ContentTypeGuard requires a content-type header equal to
// application/csp-report under any of the probed header spellings.
func ContentTypeGuard() Guard {
	return GuardFunc(func(req *models.InboundRequest) *Rejection {
		for _, v := range req.Headers.Values("content-type") {
			if v == csp.ContentType {
				return nil
			}
		}
		return &Rejection{
			Reason:     fmt.Sprintf("Content-Type must be %s", csp.ContentType),
			StatusCode: http.StatusBadRequest,
		}
	})
}

// BodyGuard rejects a missing body. An empty body passes and fails later in
// parsing.
func BodyGuard() Guard {
	return GuardFunc(func(req *models.InboundRequest) *Rejection {
		if req.Body == nil {
			return &Rejection{Reason: "event.body is undefined!", StatusCode: http.StatusBadRequest}
		}
		return nil
	})
}
