// Package connuri parses mongodb:// and mongodb+srv:// connection strings
// with a Participle grammar, the same way other DSLs in this codebase's
// lineage are parsed rather than hand-rolled with strings.Split.
package connuri

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	gmqb "github.com/squall-chua/mongofacade"
)

// =============================================================================
// Lexer Definition
// =============================================================================

var uriLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "SchemeSep", Pattern: `://`},
	{Name: "At", Pattern: `@`},
	{Name: "Colon", Pattern: `:`},
	{Name: "Slash", Pattern: `/`},
	{Name: "Question", Pattern: `\?`},
	{Name: "Amp", Pattern: `&`},
	{Name: "Equals", Pattern: `=`},
	{Name: "Text", Pattern: `[^:/@?&=]+`},
})

// =============================================================================
// Participle Grammar (Intermediate Representation)
// =============================================================================

type pURI struct {
	Pos      lexer.Position
	Scheme   string     `parser:"@Text SchemeSep"`
	UserInfo *pUserInfo `parser:"( @@ At )?"`
	Host     string     `parser:"@Text"`
	Port     *string    `parser:"( Colon @Text )?"`
	HasPath  bool       `parser:"( @Slash"`
	Database string     `parser:"@Text? )?"`
	Options  []*pOption `parser:"( Question @@ ( Amp @@ )* )?"`
}

type pUserInfo struct {
	Pos  lexer.Position
	User string  `parser:"@Text"`
	Pass *string `parser:"( Colon @Text )?"`
}

type pOption struct {
	Pos   lexer.Position
	Key   string `parser:"@Text"`
	Value string `parser:"Equals @Text"`
}

var uriParser = participle.MustBuild[pURI](
	participle.Lexer(uriLexer),
)

// URI is the parsed form of a connection string.
type URI struct {
	// Scheme is "mongodb" or "mongodb+srv".
	Scheme string
	// Username and Password are pct-decoded. Password is empty when no
	// password was supplied, even if a user was.
	Username string
	Password string
	HasAuth  bool
	// Host is the bare hostname; mongodb+srv carries no port.
	Host string
	// Port is 0 when unspecified (mongodb+srv, or a bare host).
	Port int
	// Database is the path segment after the host. An empty connection
	// string path means "no default database"; callers that need one
	// fall back to "test".
	Database    string
	HasDatabase bool
	// Options holds every ?key=value pair, pct-decoded, keyed by the
	// lowercased option name; a later duplicate overwrites an earlier one.
	Options map[string]string
}

// DatabaseOr returns Database if the URI specified one, else fallback.
func (u URI) DatabaseOr(fallback string) string {
	if u.HasDatabase && u.Database != "" {
		return u.Database
	}
	return fallback
}

// Parse parses a mongodb:// or mongodb+srv:// connection string.
func Parse(raw string) (URI, error) {
	parsed, err := uriParser.ParseString("", raw)
	if err != nil {
		return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, err, "malformed connection string")
	}

	scheme := parsed.Scheme
	if scheme != "mongodb" && scheme != "mongodb+srv" {
		return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, nil, "unsupported connection scheme %q", scheme)
	}

	out := URI{Scheme: scheme, Host: parsed.Host, Options: map[string]string{}}

	if parsed.UserInfo != nil {
		user, err := pctDecode(parsed.UserInfo.User)
		if err != nil {
			return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, err, "malformed percent-encoding in username")
		}
		out.Username = user
		out.HasAuth = true
		if parsed.UserInfo.Pass != nil {
			pass, err := pctDecode(*parsed.UserInfo.Pass)
			if err != nil {
				return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, err, "malformed percent-encoding in password")
			}
			out.Password = pass
		}
	}

	if parsed.Port != nil {
		if scheme == "mongodb+srv" {
			return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, nil, "mongodb+srv connection strings must not specify a port")
		}
		port, err := strconv.Atoi(*parsed.Port)
		if err != nil || port <= 0 || port > 65535 {
			return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, err, "invalid port %q", *parsed.Port)
		}
		out.Port = port
	}

	if parsed.HasPath {
		out.HasDatabase = true
		if parsed.Database != "" {
			db, err := pctDecode(parsed.Database)
			if err != nil {
				return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, err, "malformed percent-encoding in database path")
			}
			out.Database = db
		}
	}

	for _, opt := range parsed.Options {
		key, err := pctDecode(opt.Key)
		if err != nil {
			return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, err, "malformed percent-encoding in option key %q", opt.Key)
		}
		value, err := pctDecode(opt.Value)
		if err != nil {
			return URI{}, gmqb.NewError(gmqb.KindInvalidArgument, err, "malformed percent-encoding in option value for %q", key)
		}
		out.Options[strings.ToLower(key)] = value
	}

	return out, nil
}

func pctDecode(s string) (string, error) {
	return url.QueryUnescape(strings.ReplaceAll(s, "+", "%2B"))
}
