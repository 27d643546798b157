package factory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/standardbounties/standardbounties/internal/assets"
	"github.com/standardbounties/standardbounties/internal/bounty"
	"github.com/standardbounties/standardbounties/internal/logging"
	"github.com/standardbounties/standardbounties/pkg/types"
)

var (
	// ErrInstanceExists is returned when a deploy would reuse an address.
	ErrInstanceExists = errors.New("instance already deployed at address")

	// ErrUnknownInstance is returned when no instance lives at an address.
	ErrUnknownInstance = errors.New("unknown instance address")
)

// Factory deploys bounty instances at deterministic addresses. Every
// instance shares one implementation and one asset ledger; the address of
// an instance is a pure function of the factory address, the deployer, the
// salt, and the implementation hash, so it can be predicted before deploy.
type Factory struct {
	addr common.Address
	impl *bounty.Implementation
	bank *assets.Ledger
	log  *bounty.EventLog

	mu        sync.RWMutex
	instances map[common.Address]*bounty.Instance
	nonces    map[common.Address]uint64
}

// New creates a factory bound to a shared implementation and asset ledger.
func New(addr common.Address, impl *bounty.Implementation, bank *assets.Ledger) *Factory {
	return &Factory{
		addr:      addr,
		impl:      impl,
		bank:      bank,
		log:       bounty.NewEventLog(addr),
		instances: make(map[common.Address]*bounty.Instance),
		nonces:    make(map[common.Address]uint64),
	}
}

// deriveAddress computes the deterministic instance address for a deployer
// and salt. The salt is first bound to the deployer so two deployers using
// the same raw salt never collide.
func (f *Factory) deriveAddress(owner common.Address, salt [32]byte) common.Address {
	bound := crypto.Keccak256Hash(owner.Bytes(), salt[:])
	return crypto.CreateAddress2(f.addr, bound, f.impl.Hash().Bytes())
}

// PredictInstanceAddress returns the address an instance would be deployed
// at for the given deployer and salt, without deploying anything.
func (f *Factory) PredictInstanceAddress(owner common.Address, salt [32]byte) common.Address {
	return f.deriveAddress(owner, salt)
}

// DeployInstance deploys a new instance owned by the caller at the
// deterministic address for (caller, salt). Deploying the same pair twice
// fails with ErrInstanceExists.
func (f *Factory) DeployInstance(caller common.Address, salt [32]byte) (*bounty.Instance, error) {
	addr := f.deriveAddress(caller, salt)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.instances[addr]; ok {
		return nil, fmt.Errorf("deploy for %s: %w", addr.Hex(), ErrInstanceExists)
	}
	in := bounty.NewInstance(addr, caller, f.impl, f.bank)
	f.instances[addr] = in

	f.log.Append(types.Event{
		Type:  types.EventInstanceDeployed,
		Actor: caller,
		Data:  addr.Hex(),
	})
	logging.Info("instance deployed",
		logging.Instance(addr), logging.Actor(caller),
		"factory", f.addr.Hex(), "total_instances", len(f.instances))
	return in, nil
}

// DeployInstanceAuto deploys with a salt derived from a per-caller counter,
// for callers that do not care about the exact address. Each call yields a
// fresh instance.
func (f *Factory) DeployInstanceAuto(caller common.Address) (*bounty.Instance, error) {
	f.mu.Lock()
	nonce := f.nonces[caller]
	f.nonces[caller] = nonce + 1
	f.mu.Unlock()

	var salt [32]byte
	binary.BigEndian.PutUint64(salt[24:], nonce)
	return f.DeployInstance(caller, salt)
}

// Instance returns the deployed instance at an address.
func (f *Factory) Instance(addr common.Address) (*bounty.Instance, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	in, ok := f.instances[addr]
	if !ok {
		return nil, fmt.Errorf("instance %s: %w", addr.Hex(), ErrUnknownInstance)
	}
	return in, nil
}

// Instances returns the addresses of every deployed instance.
func (f *Factory) Instances() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]common.Address, 0, len(f.instances))
	for addr := range f.instances {
		out = append(out, addr)
	}
	return out
}

// Count returns the number of deployed instances.
func (f *Factory) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.instances)
}

// Address returns the factory's own address.
func (f *Factory) Address() common.Address {
	return f.addr
}

// ImplementationHash returns the hash of the shared implementation that all
// deployed instances run.
func (f *Factory) ImplementationHash() common.Hash {
	return f.impl.Hash()
}

// Events returns a snapshot of the factory's deployment log.
func (f *Factory) Events() []types.Event {
	return f.log.Events()
}
