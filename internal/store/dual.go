package store

import (
	"context"
	"fmt"

	"lerian-vectorstore/internal/config"
	"lerian-vectorstore/internal/logging"
	"lerian-vectorstore/pkg/vectorstore"
)

// Role is the closed set of collection roles the dual-collection manager
// recognizes.
type Role string

const (
	RoleKnowledge  Role = "knowledge"
	RoleReflection Role = "reflection"
)

var dualLogger = logging.WithComponent("dual")

// DualManager owns two independent Manager instances, one per logical
// collection role. The reflection child is optional: callers enable it by
// supplying a non-empty reflection collection name.
type DualManager struct {
	knowledge  *Manager
	reflection *Manager
}

// NewDualManager constructs a DualManager from cfg. The knowledge child
// uses cfg as-is; the reflection child clones cfg with its collection name
// replaced by cfg.ReflectionCollection, and is only constructed when that
// field is non-empty.
func NewDualManager(cfg *config.Config) (*DualManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := New(cfg)
	if err != nil {
		return nil, err
	}
	dm := &DualManager{knowledge: NewManager(store, false)}

	if cfg.ReflectionCollection != "" {
		reflectionCfg := *cfg
		reflectionCfg.Collection = cfg.ReflectionCollection
		rstore, err := New(&reflectionCfg)
		if err != nil {
			return nil, err
		}
		dm.reflection = NewManager(rstore, false)
	}

	return dm, nil
}

// Connect connects the knowledge child; failure there fails the whole
// call. The reflection child, if configured, is connected best-effort: a
// failure there is logged and degrades the facade rather than failing
// Connect.
func (d *DualManager) Connect(ctx context.Context) error {
	if err := d.knowledge.Connect(ctx); err != nil {
		return err
	}
	if d.reflection != nil {
		if err := d.reflection.Connect(ctx); err != nil {
			dualLogger.Warn("reflection collection failed to connect, continuing with knowledge only", "error", err)
		}
	}
	return nil
}

// Disconnect is best-effort on both children; a failure on one does not
// skip the other. The first error encountered is returned after both
// children have been given the chance to disconnect.
func (d *DualManager) Disconnect(ctx context.Context) error {
	var first error
	if err := d.knowledge.Disconnect(ctx); err != nil {
		first = err
	}
	if d.reflection != nil {
		if err := d.reflection.Disconnect(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// GetManager returns the Manager for role, or an Invalid argument error
// for an unrecognized or unconfigured role.
func (d *DualManager) GetManager(role Role) (*Manager, error) {
	switch role {
	case RoleKnowledge:
		return d.knowledge, nil
	case RoleReflection:
		if d.reflection == nil {
			return nil, vectorstore.NewInvalidArgument("get_manager", "dual", fmt.Errorf("reflection collection not configured"))
		}
		return d.reflection, nil
	default:
		return nil, vectorstore.NewInvalidArgument("get_manager", "dual", fmt.Errorf("unknown role: %q", role))
	}
}

// GetStore returns the underlying VectorStore for role.
func (d *DualManager) GetStore(role Role) (vectorstore.VectorStore, error) {
	m, err := d.GetManager(role)
	if err != nil {
		return nil, err
	}
	return m.Store(), nil
}

// IsConnected reports whether role's child reports connected. An
// unconfigured or unknown role reports false rather than erroring, since
// this is a status probe rather than an accessor.
func (d *DualManager) IsConnected(role Role) bool {
	m, err := d.GetManager(role)
	if err != nil {
		return false
	}
	return m.IsConnected()
}
