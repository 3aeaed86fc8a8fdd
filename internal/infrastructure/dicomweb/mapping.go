package dicomweb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/shared"
)

// ClientMapping maps storage classes to the archive adapters serving them.
// Every known storage class resolves to a manager.
type ClientMapping struct {
	byClass        map[dicom.StorageClass]*Manager
	defaultManager *Manager
	managers       []*Manager
}

// NewClientMapping creates one adapter per configured server when servers
// claim storage classes, and a single adapter over all settings otherwise.
//
// The default adapter serves VL Whole Slide Microscopy Images. It is the
// server claiming that class, or else the server without storage classes.
func NewClientMapping(opts ManagerOptions) (*ClientMapping, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	defaultCount := 0
	classCounts := make(map[dicom.StorageClass]int)
	for _, server := range opts.Settings {
		if server.StorageClasses == nil {
			defaultCount++
			continue
		}
		for _, uid := range server.StorageClasses {
			class := dicom.StorageClass(uid)
			if !class.IsKnown() {
				logger.Warn("Unknown storage class specified for configured server",
					zap.String("storage_class", uid),
					zap.String("server_id", server.ID),
				)
				continue
			}
			classCounts[class]++
		}
	}

	if defaultCount > 1 {
		return nil, shared.NewDomainError(shared.CodeConfigurationError,
			"Only one default server can be configured without specification of storage classes.")
	}
	for _, class := range dicom.StorageClasses() {
		if classCounts[class] > 1 {
			return nil, shared.NewDomainError(shared.CodeConfigurationError,
				fmt.Sprintf("Only one configured server can specify a given storage class. "+
					"Storage class %q is specified by more than one of the configured servers.", string(class)))
		}
	}

	mapping := &ClientMapping{byClass: make(map[dicom.StorageClass]*Manager)}

	if len(classCounts) > 0 {
		var unqualified *Manager
		for _, server := range opts.Settings {
			single := opts
			single.Settings = []ServerSettings{server}
			manager, err := NewManager(single)
			if err != nil {
				return nil, err
			}
			mapping.managers = append(mapping.managers, manager)
			if server.StorageClasses == nil {
				unqualified = manager
				continue
			}
			for _, uid := range server.StorageClasses {
				if class := dicom.StorageClass(uid); class.IsKnown() {
					mapping.byClass[class] = manager
				}
			}
		}
		mapping.defaultManager = mapping.byClass[dicom.StorageClassVLWholeSlideMicroscopyImage]
		if mapping.defaultManager == nil {
			mapping.defaultManager = unqualified
		}
		if mapping.defaultManager == nil {
			return nil, shared.NewDomainError(shared.CodeConfigurationError,
				"A server for VL Whole Slide Microscopy Images or a server without storage classes needs to be configured.")
		}
	} else {
		manager, err := NewManager(opts)
		if err != nil {
			return nil, err
		}
		mapping.managers = []*Manager{manager}
		mapping.defaultManager = manager
	}

	for _, class := range dicom.StorageClasses() {
		if _, ok := mapping.byClass[class]; !ok {
			mapping.byClass[class] = mapping.defaultManager
		}
	}

	return mapping, nil
}

// For returns the adapter serving the storage class. Unknown classes are
// served by the default adapter.
func (c *ClientMapping) For(sopClassUID dicom.StorageClass) *Manager {
	if m, ok := c.byClass[sopClassUID]; ok {
		return m
	}
	return c.defaultManager
}

// Default returns the default adapter.
func (c *ClientMapping) Default() *Manager {
	return c.defaultManager
}

// Managers returns the distinct adapters in configuration order.
func (c *ClientMapping) Managers() []*Manager {
	return append([]*Manager(nil), c.managers...)
}

// Fingerprint identifies the set of clients. It changes whenever a storage
// class is served by a different archive.
func (c *ClientMapping) Fingerprint() string {
	var b strings.Builder
	for _, class := range dicom.StorageClasses() {
		m := c.byClass[class]
		fmt.Fprintf(&b, "%s=%s|%s;", class, m.ID(), m.BaseURL())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}
