package registry

import (
	"github.com/dukex/flowrun/pkg/nodes/code"
	"github.com/dukex/flowrun/pkg/nodes/condition"
	"github.com/dukex/flowrun/pkg/nodes/editfields"
	"github.com/dukex/flowrun/pkg/nodes/httprequest"
	"github.com/dukex/flowrun/pkg/nodes/itemlists"
	lognode "github.com/dukex/flowrun/pkg/nodes/log"
	"github.com/dukex/flowrun/pkg/nodes/merge"
	"github.com/dukex/flowrun/pkg/nodes/output"
	"github.com/dukex/flowrun/pkg/nodes/set"
	switchnode "github.com/dukex/flowrun/pkg/nodes/switch"
	"github.com/dukex/flowrun/pkg/nodes/transform"
	"github.com/dukex/flowrun/pkg/nodes/trigger"
	"github.com/dukex/flowrun/pkg/nodes/wait"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	// Triggers
	r.Register(trigger.NewManualFactory())
	r.Register(trigger.NewCronFactory())
	r.Register(trigger.NewWebhookFactory())

	// Flow control
	r.Register(condition.NewFactory())
	r.Register(switchnode.NewFactory())
	r.Register(merge.NewFactory())
	r.Register(wait.NewFactory())

	// Actions
	r.Register(httprequest.NewFactory())
	r.Register(code.NewFactory())

	// Data
	r.Register(set.NewFactory())
	r.Register(editfields.NewFactory())
	r.Register(itemlists.NewFactory())
	r.Register(output.NewFactory())
	r.Register(transform.NewFactory())
	r.Register(lognode.NewFactory())
}
