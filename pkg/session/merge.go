package session

// PlanCatalog maps billing price ids to friendly plan names.
type PlanCatalog map[string]string

func (p PlanCatalog) Name(priceID string) string {
	return p[priceID]
}

var activeStatuses = map[string]bool{
	"active":   true,
	"trialing": true,
}

// PlanIsActive reports whether a subscription status grants plan access.
func PlanIsActive(status string) bool {
	return activeStatuses[status]
}

// Merge combines an identity and a record query into a State. A nil
// identity means the provider reported that nobody is signed in. A record
// that is still loading, failed to load or does not exist yet keeps the
// state Loading.
func Merge(id *Identity, res RecordResult, plans PlanCatalog) State {
	if id == nil {
		return SignedOut()
	}
	if res.Status != StatusSuccess || res.Data == nil {
		return Loading()
	}

	rec := res.Data
	return Ready(User{
		Identity:           *id,
		Fields:             rec.Fields,
		PriceID:            rec.PriceID,
		SubscriptionStatus: rec.SubscriptionStatus,
		PlanID:             plans.Name(rec.PriceID),
		PlanIsActive:       PlanIsActive(rec.SubscriptionStatus),
	})
}

type mergeKey struct {
	signedIn bool
	identity Identity
	status   QueryStatus
	data     *Record
	errText  string
}

func keyOf(id *Identity, res RecordResult) mergeKey {
	k := mergeKey{status: res.Status, data: res.Data}
	if id != nil {
		k.signedIn = true
		k.identity = *id
	}
	if res.Err != nil {
		k.errText = res.Err.Error()
	}
	return k
}

// memo caches the last Merge output keyed on its two inputs. Records are
// compared by pointer, so a refetch always yields a new result.
type memo struct {
	valid bool
	key   mergeKey
	state State
}

func (m *memo) merge(id *Identity, res RecordResult, plans PlanCatalog) (State, bool) {
	k := keyOf(id, res)
	if m.valid && m.key == k {
		return m.state, false
	}
	m.valid = true
	m.key = k
	m.state = Merge(id, res, plans)
	return m.state, true
}
