package model

import (
	"github.com/isabella232/sdc-amon/pkg/amonerr"
)

const ContactObjectClass = "amoncontact"

// Contact is one way to reach an account owner: the medium names the
// notification plugin, the data is the plugin-specific address.
type Contact struct {
	User   string
	Name   string
	Medium string
	Data   string
}

// ContactInput is the API write form of a contact.
type ContactInput struct {
	Name   string `json:"name" mapstructure:"name"`
	Medium string `json:"medium" mapstructure:"medium"`
	Data   string `json:"data" mapstructure:"data"`
}

// ContactView is the API read form of a contact.
type ContactView struct {
	User   string `json:"user"`
	Name   string `json:"name"`
	Medium string `json:"medium"`
	Data   string `json:"data"`
}

// NewContact builds a contact from API input.
func NewContact(user string, in ContactInput) (*Contact, error) {
	c := &Contact{
		User:   user,
		Name:   in.Name,
		Medium: in.Medium,
		Data:   in.Data,
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ContactFromEntry builds a contact from its raw directory entry. A failure
// here means a corrupt record, not bad user input.
func ContactFromEntry(dn string, attrs map[string][]string) (*Contact, error) {
	if !hasObjectClass(attrs, ContactObjectClass) {
		return nil, amonerr.Internal("entry %q is not an %s", dn, ContactObjectClass)
	}
	user, name, err := ParseContactDN(dn)
	if err != nil {
		return nil, amonerr.Internal("contact entry: %v", err)
	}
	c := &Contact{
		User:   user,
		Name:   name,
		Medium: singleAttr(attrs, "medium"),
		Data:   singleAttr(attrs, "data"),
	}
	if err := c.validate(); err != nil {
		return nil, amonerr.Internal("corrupt contact entry %q: %v", dn, err)
	}
	return c, nil
}

func (c *Contact) validate() error {
	if c.Name == "" {
		return amonerr.MissingParameter("name is required")
	}
	if !ValidName(c.Name) {
		return amonerr.InvalidArgument("name: %q is not a valid name", c.Name)
	}
	if !ValidUUID(c.User) {
		return amonerr.InvalidArgument("user: %q is not a UUID", c.User)
	}
	if c.Medium == "" {
		return amonerr.MissingParameter("medium is required")
	}
	if c.Data == "" {
		return amonerr.MissingParameter("data is required")
	}
	return nil
}

func (c *Contact) DN() string {
	return ContactDN(c.User, c.Name)
}

// Attributes returns the entry form written to the directory.
func (c *Contact) Attributes() map[string][]string {
	return map[string][]string{
		"objectclass": {ContactObjectClass},
		"amoncontact": {c.Name},
		"medium":      {c.Medium},
		"data":        {c.Data},
	}
}

func (c *Contact) View() ContactView {
	return ContactView{
		User:   c.User,
		Name:   c.Name,
		Medium: c.Medium,
		Data:   c.Data,
	}
}
