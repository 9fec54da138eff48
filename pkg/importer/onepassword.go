package importer

import "strings"

// OnePasswordParser parses 1Password CSV exports:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

// 1Password CSV column names.
const (
	op1ColTitle    = "Title"
	op1ColWebsite  = "Website"
	op1ColUsername = "Username"
	op1ColPassword = "Password"
	op1ColOTPAuth  = "OTPAuth"
	op1ColNotes    = "Notes"
)

// Source returns the source type for this parser.
func (p *OnePasswordParser) Source() Source {
	return Source1Password
}

// Parse stores each row's password under its title.
func (p *OnePasswordParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	itemCounter := 1
	keepHeader := func(s string) string { return strings.TrimSpace(s) }
	return readCSV(data, op1ColTitle, keepHeader, func(get func(string) string) (*item, string) {
		value := func(col string) string { return strings.TrimSpace(get(col)) }

		title := value(op1ColTitle)
		website := value(op1ColWebsite)

		username := value(op1ColUsername)
		totp := value(op1ColOTPAuth)
		notes := value(op1ColNotes)

		it := &item{origin: title, primary: value(op1ColPassword)}
		if it.primary == "" && username == "" && totp == "" && notes == "" {
			return nil, "no useful data"
		}
		it.add("username", username)
		it.add("totp", totp)
		it.add("notes", notes)
		it.add("url", website)

		it.key = SanitizeKeyName(title, opts.PreserveCase)
		if it.key == "" {
			it.key = SanitizeKeyName(GenerateFallbackKey(website, itemCounter), opts.PreserveCase)
			itemCounter++
		}
		return it, ""
	})
}
