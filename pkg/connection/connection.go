// pkg/connection/connection.go
//
// Connection configuration for the query engine. A connection file tells
// the engine which plugin serves a provider; credentials are never written
// here, the plugin picks them up from the provider's own credential chain
// (environment, shared config, instance metadata).

package connection

import (
	"os"
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_err"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/attest_io"
	"github.com/CodeMonkeyCybersecurity/attest/pkg/xdg"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

// Configurator writes per-provider connection files into the engine's
// config directory.
type Configurator struct {
	dir string
}

// New builds a configurator targeting dir (the engine's config dir).
func New(dir string) *Configurator {
	return &Configurator{dir: dir}
}

// Path returns where the provider's connection file lives.
func (c *Configurator) Path(provider string) string {
	return filepath.Join(c.dir, provider+".spc")
}

// Configure writes the connection file for a provider, wholesale. Any
// existing file is replaced, never merged: stale options from a previous
// run must not survive into this one. The subscription narrows scope for
// providers that need one (azure); it is an account selector, not a
// credential.
func (c *Configurator) Configure(rc *attest_io.RuntimeContext, provider, subscription string) error {
	logger := otelzap.Ctx(rc.Ctx)

	if err := os.MkdirAll(c.dir, xdg.DirPermStandard); err != nil {
		return attest_err.Wrap(attest_err.CategoryConfigWrite, err,
			"create connection config dir %s", c.dir)
	}

	f := hclwrite.NewEmptyFile()
	conn := f.Body().AppendNewBlock("connection", []string{provider})
	conn.Body().SetAttributeValue("plugin", cty.StringVal(provider))
	if subscription != "" {
		conn.Body().SetAttributeValue("subscription_id", cty.StringVal(subscription))
	}

	path := c.Path(provider)
	if err := os.WriteFile(path, f.Bytes(), xdg.FilePermStandard); err != nil {
		return attest_err.Wrap(attest_err.CategoryConfigWrite, err,
			"write connection config %s", path)
	}

	logger.Info("Wrote connection config",
		zap.String("provider", provider),
		zap.String("path", path))
	return nil
}

// IsConfigured reports whether the provider's connection file exists.
func (c *Configurator) IsConfigured(provider string) bool {
	_, err := os.Stat(c.Path(provider))
	return err == nil
}
