package msauth

// clientIDs is the cross-product search space's client-id axis: a handful
// of historically-valid Minecraft-launcher-family client IDs. Microsoft
// periodically retires individual IDs without notice, which is exactly why
// the chain tries all of them rather than hard-coding one.
var clientIDs = []string{
	"00000000402b5328",
	"000000004C12AE6F",
	"000000004C20A908",
	"0000000048183522",
	"000000004415E156",
}

// scopes is the cross-product's scope axis. Each string is placed verbatim
// in the urlencoded form body — note the literal "%20" rather than an
// actual space — because the refresh endpoint is sensitive to exactly how
// the separator is spelled and re-encoding it with net/url breaks the
// combination that upstream actually accepts.
var scopes = []string{
	"XboxLive.signin%20XboxLive.offline_access",
	"service::user.auth.xboxlive.com::MBI_SSL",
	"XboxLive.signin",
	"service::user.auth.xboxlive.com::MBI_SSL%20XboxLive.signin%20XboxLive.offline_access",
}

// combo is one (clientID, scope) pair from the cross-product search space.
type combo struct {
	clientID string
	scope    string
}

// comboSpace returns the full 5x4 cross-product, cached-combo first when
// one is supplied so a prior success is retried before falling through to
// the rest of the space.
func comboSpace(cached *combo) []combo {
	all := make([]combo, 0, len(clientIDs)*len(scopes))
	if cached != nil {
		all = append(all, *cached)
	}
	for _, id := range clientIDs {
		for _, sc := range scopes {
			if cached != nil && id == cached.clientID && sc == cached.scope {
				continue
			}
			all = append(all, combo{clientID: id, scope: sc})
		}
	}
	return all
}
