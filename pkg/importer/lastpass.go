package importer

import "strings"

// LastPassParser parses LastPass CSV exports:
// url,username,password,totp,extra,name,grouping,fav
type LastPassParser struct{}

// LastPass CSV column names.
const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColTOTP     = "totp"
	lpColExtra    = "extra"
	lpColName     = "name"
)

// lastPassSecureNoteURL marks secure notes in LastPass exports.
const lastPassSecureNoteURL = "http://sn"

// Source returns the source type for this parser.
func (p *LastPassParser) Source() Source {
	return SourceLastPass
}

// Parse decodes HTML entities in every cell. Secure notes store the note
// text as the primary value; logins store the password.
func (p *LastPassParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	itemCounter := 1
	return readCSV(data, lpColName, strings.ToLower, func(get func(string) string) (*item, string) {
		value := func(col string) string {
			return DecodeHTMLEntities(strings.TrimSpace(get(col)))
		}

		name := value(lpColName)
		url := value(lpColURL)
		extra := value(lpColExtra)
		isNote := url == lastPassSecureNoteURL

		it := &item{origin: name}
		if isNote {
			it.primary = extra
		} else {
			username, totp := value(lpColUsername), value(lpColTOTP)
			it.primary = value(lpColPassword)
			if it.primary == "" && username == "" && totp == "" && extra == "" {
				return nil, "no useful data"
			}
			it.add("username", username)
			it.add("totp", totp)
			it.add("notes", extra)
			it.add("url", url)
		}
		if it.empty() {
			return nil, "no useful data"
		}

		it.key = SanitizeKeyName(name, opts.PreserveCase)
		if it.key == "" {
			fallbackURL := url
			if isNote {
				fallbackURL = ""
			}
			it.key = SanitizeKeyName(GenerateFallbackKey(fallbackURL, itemCounter), opts.PreserveCase)
			itemCounter++
		}
		return it, ""
	})
}
