package eveapi

import "strings"

// Endpoint describes one upstream call.
type Endpoint struct {
	Group string
	Name  string
	// Mask is the access mask bit the call needs; zero means none.
	Mask int64
	// Character endpoints act on one character and take a characterID.
	Character bool
	// NeedsKey endpoints fail without a credential.
	NeedsKey bool
	// Corporation endpoints need a corporation key of the character's corporation.
	Corporation bool
}

// Path is "<group>/<name>".
func (e Endpoint) Path() string { return e.Group + "/" + e.Name }

func char(name string, mask int64) Endpoint {
	return Endpoint{Group: "char", Name: name, Mask: mask, Character: true, NeedsKey: true}
}

func corp(name string, mask int64) Endpoint {
	return Endpoint{Group: "corp", Name: name, Mask: mask, Character: true, NeedsKey: true, Corporation: true}
}

var endpoints = map[string]Endpoint{}

func register(eps ...Endpoint) {
	for _, e := range eps {
		endpoints[strings.ToLower(e.Path())] = e
	}
}

func init() {
	register(
		Endpoint{Group: "account", Name: "APIKeyInfo", NeedsKey: true},
		Endpoint{Group: "account", Name: "Characters", NeedsKey: true},
		Endpoint{Group: "account", Name: "AccountStatus", Mask: 33554432, Character: true, NeedsKey: true},

		char("AccountBalance", 1),
		char("AssetList", 2),
		char("CalendarEventAttendees", 4),
		char("CharacterSheet", 8),
		char("ContactList", 16),
		char("ContactNotifications", 32),
		char("FacWarStats", 64),
		char("IndustryJobs", 128),
		char("KillLog", 256),
		char("MailBodies", 512),
		char("MailingLists", 1024),
		char("MailMessages", 2048),
		char("MarketOrders", 4096),
		char("Medals", 8192),
		char("Notifications", 16384),
		char("NotificationTexts", 32768),
		char("Research", 65536),
		char("SkillInTraining", 131072),
		char("WalletJournal", 0x40000),
		char("SkillQueue", 524288),
		char("UpcomingCalendarEvents", 1048576),
		char("Standings", 2097152),
		char("WalletTransactions", 4194304),
		char("Contracts", 67108864),
		char("Locations", 134217728),

		corp("AccountBalance", 1),
		corp("AssetList", 2),
		corp("CorporationSheet", 8),
		corp("ContactList", 16),
		corp("IndustryJobs", 128),
		corp("MemberTracking", 2048),
		corp("MarketOrders", 4096),
		corp("Standings", 262144),
		corp("WalletJournal", 1048576),
		corp("WalletTransactions", 2097152),
		corp("Titles", 4194304),
		corp("Contracts", 8388608),
	)
}

// publicGroups need neither key nor character.
var publicGroups = map[string]bool{"eve": true, "map": true, "server": true}

// Lookup resolves an endpoint. Calls into public groups are always known.
func Lookup(group, name string) (Endpoint, bool) {
	if e, ok := endpoints[strings.ToLower(group+"/"+name)]; ok {
		return e, true
	}
	if publicGroups[strings.ToLower(group)] && name != "" {
		return Endpoint{Group: strings.ToLower(group), Name: name}, true
	}
	return Endpoint{}, false
}
