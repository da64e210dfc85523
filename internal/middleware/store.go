package middleware

import (
	"github.com/m1z23r/drift/pkg/drift"
)

const StoreSubjectKey = "store_subject"

type StoreTokenValidator interface {
	Validate(token string) (subjectID string, err error)
}

// StoreAuth authenticates data store requests with a store credential.
// Identity access tokens are rejected; they are signed with another key.
func StoreAuth(storeTokens StoreTokenValidator) drift.HandlerFunc {
	return func(c *drift.Context) {
		token, problem := bearerToken(c.Request, false)
		if problem != "" {
			c.Unauthorized(problem)
			return
		}
		if token == "" {
			c.Unauthorized("missing authorization header")
			return
		}

		subject, err := storeTokens.Validate(token)
		if err != nil {
			c.Unauthorized("invalid or expired store credential")
			return
		}

		c.Set(StoreSubjectKey, subject)
		c.Next()
	}
}

func GetStoreSubject(c *drift.Context) string {
	return getString(c, StoreSubjectKey)
}

// StoreSubjectMatches reports whether the credential may touch the record
// named by the :id route parameter, answering 403 when it may not.
func StoreSubjectMatches(c *drift.Context) bool {
	subject := GetStoreSubject(c)
	if subject == "" {
		c.Unauthorized("not authenticated")
		return false
	}
	if c.Param("id") != subject {
		c.Forbidden("credential does not grant access to this record")
		return false
	}
	return true
}
