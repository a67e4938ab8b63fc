// Package geo tracks the last-known position fix per peer role.
package geo

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Rachana904/v2vcommunication/pkg/relay1/model"
)

// Tracker stores the most recent position fix reported by each role.
// Entries expire after the configured TTL, so a peer that stops reporting
// positions is eventually shown as having no fix instead of a stale one.
type Tracker struct {
	fixes *ttlcache.Cache[model.Role, model.Position]
}

// New returns a Tracker whose entries expire after ttl.
func New(ttl time.Duration) *Tracker {
	cache := ttlcache.New(
		ttlcache.WithTTL[model.Role, model.Position](ttl),
		ttlcache.WithDisableTouchOnHit[model.Role, model.Position](),
	)
	go cache.Start()
	return &Tracker{fixes: cache}
}

// Update records pos as role's most recent fix. A nil pos means the peer
// has no fix and is ignored; the previous fix keeps aging out on its own.
func (t *Tracker) Update(role model.Role, pos *model.Position) {
	if pos == nil {
		return
	}
	t.fixes.Set(role, *pos, ttlcache.DefaultTTL)
}

// Last returns role's most recent unexpired fix.
func (t *Tracker) Last(role model.Role) (model.Position, bool) {
	item := t.fixes.Get(role)
	if item == nil {
		return model.Position{}, false
	}
	return item.Value(), true
}

// Snapshot returns the current fixes for both roles. Roles without an
// unexpired fix are absent from the map.
func (t *Tracker) Snapshot() map[model.Role]model.Position {
	snapshot := make(map[model.Role]model.Position)
	for _, role := range []model.Role{model.RoleMeasurement, model.RoleActuation} {
		if pos, ok := t.Last(role); ok {
			snapshot[role] = pos
		}
	}
	return snapshot
}

// Stop stops the expiry loop.
func (t *Tracker) Stop() {
	t.fixes.Stop()
}
