// Package colorize highlights bytecode listings for the terminal.
package colorize

import (
	"os"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Listing is the lexer for listings produced by bytecode.Disassemble.
var Listing = lexers.Register(chroma.MustNewLexer(
	&chroma.Config{
		Name:     "JVM listing",
		Aliases:  []string{"jvm-listing"},
		EnsureNL: true,
	},
	func() chroma.Rules {
		return chroma.Rules{
			"root": {
				{Pattern: `\s+`, Type: chroma.TextWhitespace, Mutator: nil},
				{Pattern: `;[^\n]*`, Type: chroma.Comment, Mutator: nil},
				{Pattern: `#\d+`, Type: chroma.NameVariable, Mutator: nil},
				// Offsets and branch targets; mnemonics such as dadd are all
				// hex letters, so a digit is required.
				{Pattern: `(?=[0-9a-f]*[0-9])[0-9a-f]{4,}\b`, Type: chroma.NameLabel, Mutator: nil},
				{Pattern: `-?\d+`, Type: chroma.LiteralNumber, Mutator: nil},
				{Pattern: `wide\b`, Type: chroma.KeywordPseudo, Mutator: nil},
				{Pattern: `[a-z][a-z0-9_]*`, Type: chroma.Keyword, Mutator: nil},
				{Pattern: `,`, Type: chroma.Punctuation, Mutator: nil},
				{Pattern: `.`, Type: chroma.Text, Mutator: nil},
			},
		}
	},
))

// Disabled reports whether TIMERFIX_NO_COLOR is set.
func Disabled() bool {
	return os.Getenv("TIMERFIX_NO_COLOR") != ""
}

// getListingStyle returns the listing style with fallbacks
func getListingStyle() *chroma.Style {
	for _, name := range []string{"jvm-dark", "dracula", "monokai"} {
		if style := styles.Get(name); style != nil {
			return style
		}
	}
	return styles.Fallback
}

// getTerminalFormatter returns an appropriate terminal formatter
func getTerminalFormatter() chroma.Formatter {
	for _, name := range []string{"terminal16m", "terminal256"} {
		if formatter := formatters.Get(name); formatter != nil {
			return formatter
		}
	}
	return formatters.Fallback
}

// ColorizeListing applies syntax highlighting to a bytecode listing. The
// listing is returned unchanged when colours are disabled.
func ColorizeListing(listing string) (string, error) {
	if Disabled() {
		return listing, nil
	}

	iterator, err := Listing.Tokenise(nil, listing)
	if err != nil {
		return listing, err
	}

	var buf strings.Builder
	if err := getTerminalFormatter().Format(&buf, getListingStyle(), iterator); err != nil {
		return listing, err
	}
	return buf.String(), nil
}
