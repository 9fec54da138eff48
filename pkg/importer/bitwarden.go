package importer

import (
	"encoding/json"
	"fmt"
)

// BitwardenParser parses Bitwarden's unencrypted JSON export.
type BitwardenParser struct{}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

type bitwardenExport struct {
	Encrypted bool            `json:"encrypted"`
	Items     []bitwardenItem `json:"items"`
}

type bitwardenItem struct {
	Type     int                    `json:"type"`
	Name     string                 `json:"name"`
	Notes    string                 `json:"notes"`
	Login    *bitwardenLogin        `json:"login"`
	Card     *bitwardenCard         `json:"card"`
	Identity *bitwardenIdentity     `json:"identity"`
	Fields   []bitwardenCustomField `json:"fields"`
}

type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	TOTP     string         `json:"totp"`
}

type bitwardenURI struct {
	URI string `json:"uri"`
}

type bitwardenCard struct {
	CardholderName string `json:"cardholderName"`
	Number         string `json:"number"`
	ExpMonth       string `json:"expMonth"`
	ExpYear        string `json:"expYear"`
	Code           string `json:"code"`
	Brand          string `json:"brand"`
}

type bitwardenIdentity struct {
	Title          string `json:"title"`
	FirstName      string `json:"firstName"`
	MiddleName     string `json:"middleName"`
	LastName       string `json:"lastName"`
	Username       string `json:"username"`
	Company        string `json:"company"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	Address1       string `json:"address1"`
	Address2       string `json:"address2"`
	Address3       string `json:"address3"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postalCode"`
	Country        string `json:"country"`
	SSN            string `json:"ssn"`
	PassportNumber string `json:"passportNumber"`
	LicenseNumber  string `json:"licenseNumber"`
}

type bitwardenCustomField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Source returns the source type for this parser.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse maps logins to their password, secure notes to their text, cards
// to their number and identities to suffixed fields only.
func (p *BitwardenParser) Parse(data []byte, opts ParseOptions) (*ImportResult, error) {
	var export bitwardenExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("%w: failed to parse Bitwarden JSON: %v", ErrInvalidFormat, err)
	}
	if export.Encrypted {
		return nil, ErrEncryptedExport
	}

	result := newResult()
	var items []*item
	itemCounter := 1

	for i := range export.Items {
		bw := &export.Items[i]
		it, warning := p.parseItem(bw, opts, &itemCounter)
		if warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("item %d (%s): %s", i+1, bw.Name, warning))
			continue
		}
		if it.empty() {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: bw.Name, Reason: "no useful data"})
			continue
		}
		items = append(items, it)
	}

	flatten(result, items)
	return result, nil
}

func (p *BitwardenParser) parseItem(bw *bitwardenItem, opts ParseOptions, itemCounter *int) (*item, string) {
	it := &item{origin: bw.Name}
	var url string

	switch bw.Type {
	case bitwardenTypeLogin:
		if l := bw.Login; l != nil {
			it.primary = l.Password
			it.add("username", l.Username)
			it.add("totp", l.TOTP)
			for i, u := range l.URIs {
				if i == 0 {
					url = u.URI
					it.add("url", u.URI)
					continue
				}
				it.add(fmt.Sprintf("url_%d", i+1), u.URI)
			}
		}
		it.add("notes", bw.Notes)
	case bitwardenTypeSecureNote:
		it.primary = bw.Notes
	case bitwardenTypeCard:
		if c := bw.Card; c != nil {
			it.primary = c.Number
			it.add("cardholder_name", c.CardholderName)
			it.add("exp_month", c.ExpMonth)
			it.add("exp_year", c.ExpYear)
			it.add("cvv", c.Code)
			it.add("brand", c.Brand)
		}
		it.add("notes", bw.Notes)
	case bitwardenTypeIdentity:
		if id := bw.Identity; id != nil {
			it.add("title", id.Title)
			it.add("first_name", id.FirstName)
			it.add("middle_name", id.MiddleName)
			it.add("last_name", id.LastName)
			it.add("username", id.Username)
			it.add("company", id.Company)
			it.add("email", id.Email)
			it.add("phone", id.Phone)
			it.add("address1", id.Address1)
			it.add("address2", id.Address2)
			it.add("address3", id.Address3)
			it.add("city", id.City)
			it.add("state", id.State)
			it.add("postal_code", id.PostalCode)
			it.add("country", id.Country)
			it.add("ssn", id.SSN)
			it.add("passport", id.PassportNumber)
			it.add("license", id.LicenseNumber)
		}
		it.add("notes", bw.Notes)
	default:
		return nil, fmt.Sprintf("unsupported item type: %d", bw.Type)
	}

	if it.empty() {
		return it, ""
	}

	for _, cf := range bw.Fields {
		name := SanitizeKeyName(cf.Name, opts.PreserveCase)
		if name == "" {
			name = "custom_field"
		}
		it.add(name, cf.Value)
	}

	it.key = SanitizeKeyName(bw.Name, opts.PreserveCase)
	if it.key == "" {
		it.key = SanitizeKeyName(GenerateFallbackKey(url, *itemCounter), opts.PreserveCase)
		*itemCounter++
	}
	return it, ""
}
