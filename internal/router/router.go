package router

import (
	"github.com/sirupsen/logrus"

	"chatdesk/pkg/interfaces"
	"chatdesk/pkg/types"
)

// Router fans events out to live connections. It holds no subscriptions;
// targets are chosen from connection role and identity at send time.
type Router struct {
	registry interfaces.Registry
	log      *logrus.Entry
}

var _ interfaces.Broadcaster = (*Router)(nil)

// NewRouter creates a router over registry. log may be nil.
func NewRouter(registry interfaces.Registry, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Router{registry: registry, log: log}
}

// ToCustomer delivers event to every connection of one customer and returns
// the number of successful sends.
func (r *Router) ToCustomer(customerID int64, event any) int {
	return r.deliver(func(c interfaces.Connection) bool {
		return c.Role() == types.RoleCustomer && c.Identity() == customerID
	}, event)
}

// ToAdmins delivers event to every admin connection except those belonging
// to excludeAdminID. Zero excludes nobody.
func (r *Router) ToAdmins(event any, excludeAdminID int64) int {
	return r.deliver(func(c interfaces.Connection) bool {
		if c.Role() != types.RoleAdmin {
			return false
		}
		return excludeAdminID == 0 || c.Identity() != excludeAdminID
	}, event)
}

func (r *Router) deliver(match func(interfaces.Connection) bool, event any) int {
	delivered := 0
	r.registry.ForEach(match, func(c interfaces.Connection) {
		if err := c.WriteJSON(event); err != nil {
			r.log.WithFields(logrus.Fields{
				"connection_id": c.ID(),
				"role":          c.Role(),
				"identity":      c.Identity(),
			}).WithError(err).Warn("failed to deliver event")
			return
		}
		delivered++
	})
	return delivered
}
