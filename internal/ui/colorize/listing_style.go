package colorize

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/styles"
)

// JVMDark is the listing style, registered as "jvm-dark".
var JVMDark = styles.Register(chroma.MustNewStyle("jvm-dark", chroma.StyleEntries{
	chroma.Text:       "#FFFFFF",
	chroma.Background: "bg:#1e1e1e",
	chroma.Comment:    "#6A9955", // pool annotations

	chroma.Keyword:       "#FFFFFF", // mnemonics
	chroma.KeywordPseudo: "#C586C0",
	chroma.NameVariable:  "#7C9C9D", // pool indices
	chroma.NameLabel:     "#4F4F4F", // offsets

	chroma.LiteralNumber: "#FF5F87",
	chroma.Punctuation:   "#FFFFFF",
}))
