package fetch

import "github.com/rs/xid"

// Token identifies one subscription on an Operation. Tokens are never reused.
type Token struct {
	id xid.ID
}

func newToken() Token {
	return Token{id: xid.New()}
}

// IsZero reports whether t is the zero Token, which is never issued.
func (t Token) IsZero() bool {
	return t.id.IsNil()
}

func (t Token) String() string {
	return t.id.String()
}
