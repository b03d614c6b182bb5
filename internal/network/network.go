package network

import "rulecore/internal/fact"

// Network is the top-level match network: one AlphaChain per template
// name, dispatching fact.Store's assert/retract notifications to the
// chains whose pattern matches that template. Each template pattern
// compiles to a chain of alpha nodes.
type Network struct {
	chains map[string][]*AlphaChain
}

// New constructs an empty network. It implements fact.Listener once
// chains have been registered via RegisterChain.
func New() *Network {
	return &Network{chains: make(map[string][]*AlphaChain)}
}

// RegisterChain attaches chain as one of possibly several pattern chains
// compiled against facts of the given template name (several rules may
// each contribute their own chain over the same template).
func (n *Network) RegisterChain(templateName string, chain *AlphaChain) {
	n.chains[templateName] = append(n.chains[templateName], chain)
}

// UnregisterChain detaches chain from templateName, so future asserts no
// longer reach it. Existing alpha memory contents and downstream joins
// are left as-is; a caller undefining a rule is expected to also retract
// or ignore its Terminal's callbacks.
func (n *Network) UnregisterChain(templateName string, chain *AlphaChain) {
	chains := n.chains[templateName]
	for i, c := range chains {
		if c == chain {
			n.chains[templateName] = append(chains[:i:i], chains[i+1:]...)
			return
		}
	}
}

// OnAssert implements fact.Listener.
func (n *Network) OnAssert(f *fact.Fact) {
	for _, c := range n.chains[f.Template.Name] {
		c.OnAssert(f)
	}
}

// OnRetract implements fact.Listener.
func (n *Network) OnRetract(f *fact.Fact) {
	for _, c := range n.chains[f.Template.Name] {
		c.OnRetract(f)
	}
}

var _ fact.Listener = (*Network)(nil)
