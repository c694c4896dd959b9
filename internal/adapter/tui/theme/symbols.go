package theme

import (
	"os"
	"strings"
)

// SymbolSet is the glyph set used in chat output.
type SymbolSet struct {
	Success string
	Error   string
	Warning string
	Bullet  string
	ArrowR  string
	User    string
	Desk    string
}

var unicodeSymbols = SymbolSet{
	Success: "\u2713", // ✓
	Error:   "\u2717", // ✗
	Warning: "\u26A0", // ⚠
	Bullet:  "\u2022", // •
	ArrowR:  "\u2192", // →
	User:    "You",
	Desk:    "Help Desk",
}

var asciiSymbols = SymbolSet{
	Success: "[OK]",
	Error:   "[ERR]",
	Warning: "[!]",
	Bullet:  "*",
	ArrowR:  "->",
	User:    "You",
	Desk:    "Help Desk",
}

var (
	SymbolSuccess = unicodeSymbols.Success
	SymbolError   = unicodeSymbols.Error
	SymbolWarning = unicodeSymbols.Warning
	SymbolBullet  = unicodeSymbols.Bullet
	SymbolArrowR  = unicodeSymbols.ArrowR
	SymbolUser    = unicodeSymbols.User
	SymbolDesk    = unicodeSymbols.Desk
)

// DetectUnicodeSupport reports whether the terminal likely renders
// Unicode. HELPDESK_ASCII_SYMBOLS=1 forces ASCII.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("HELPDESK_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return true
		}
	}
	return true
}

// InitSymbols picks the glyph set for the current environment.
func InitSymbols() {
	set := unicodeSymbols
	if !DetectUnicodeSupport() {
		set = asciiSymbols
	}
	SymbolSuccess = set.Success
	SymbolError = set.Error
	SymbolWarning = set.Warning
	SymbolBullet = set.Bullet
	SymbolArrowR = set.ArrowR
	SymbolUser = set.User
	SymbolDesk = set.Desk
}

func init() {
	InitSymbols()
}
