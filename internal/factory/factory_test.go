package factory

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/standardbounties/standardbounties/internal/assets"
	"github.com/standardbounties/standardbounties/internal/bounty"
	"github.com/standardbounties/standardbounties/pkg/types"
)

var (
	factoryAddr = common.HexToAddress("0x00000000000000000000000000000000000FAC70")
	deployer    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	deployer2   = common.HexToAddress("0x00000000000000000000000000000000000000d2")
)

func newTestFactory() *Factory {
	impl := bounty.NewImplementation(bounty.Params{})
	return New(factoryAddr, impl, assets.NewLedger())
}

func salted(b byte) [32]byte {
	var s [32]byte
	s[31] = b
	return s
}

func TestPredictMatchesDeploy(t *testing.T) {
	f := newTestFactory()

	predicted := f.PredictInstanceAddress(deployer, salted(1))
	in, err := f.DeployInstance(deployer, salted(1))
	if err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	if in.Address() != predicted {
		t.Errorf("deployed at %s, predicted %s", in.Address().Hex(), predicted.Hex())
	}
	if in.Owner() != deployer {
		t.Errorf("owner = %s, want deployer", in.Owner().Hex())
	}
}

func TestPredictionIsDeterministic(t *testing.T) {
	f := newTestFactory()
	g := newTestFactory()

	a := f.PredictInstanceAddress(deployer, salted(7))
	b := g.PredictInstanceAddress(deployer, salted(7))
	if a != b {
		t.Errorf("same inputs predicted %s and %s", a.Hex(), b.Hex())
	}
}

func TestDistinctInputsYieldDistinctAddresses(t *testing.T) {
	f := newTestFactory()

	bySalt1 := f.PredictInstanceAddress(deployer, salted(1))
	bySalt2 := f.PredictInstanceAddress(deployer, salted(2))
	if bySalt1 == bySalt2 {
		t.Error("different salts predicted the same address")
	}

	byOwner2 := f.PredictInstanceAddress(deployer2, salted(1))
	if bySalt1 == byOwner2 {
		t.Error("different deployers with the same salt predicted the same address")
	}
}

func TestDuplicateDeployFails(t *testing.T) {
	f := newTestFactory()

	if _, err := f.DeployInstance(deployer, salted(1)); err != nil {
		t.Fatalf("deploy failed: %v", err)
	}
	_, err := f.DeployInstance(deployer, salted(1))
	if !errors.Is(err, ErrInstanceExists) {
		t.Errorf("err = %v, want ErrInstanceExists", err)
	}
	if got := f.Count(); got != 1 {
		t.Errorf("count = %d, want 1", got)
	}
}

func TestDeployInstanceAuto(t *testing.T) {
	f := newTestFactory()

	a, err := f.DeployInstanceAuto(deployer)
	if err != nil {
		t.Fatalf("first auto deploy failed: %v", err)
	}
	b, err := f.DeployInstanceAuto(deployer)
	if err != nil {
		t.Fatalf("second auto deploy failed: %v", err)
	}
	if a.Address() == b.Address() {
		t.Error("auto deploys reused an address")
	}
	if got := f.Count(); got != 2 {
		t.Errorf("count = %d, want 2", got)
	}
}

func TestInstanceLookup(t *testing.T) {
	f := newTestFactory()
	in, _ := f.DeployInstance(deployer, salted(1))

	got, err := f.Instance(in.Address())
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if got != in {
		t.Error("lookup returned a different instance")
	}

	_, err = f.Instance(common.HexToAddress("0xdead"))
	if !errors.Is(err, ErrUnknownInstance) {
		t.Errorf("err = %v, want ErrUnknownInstance", err)
	}

	addrs := f.Instances()
	if len(addrs) != 1 || addrs[0] != in.Address() {
		t.Errorf("instances = %v", addrs)
	}
}

func TestDeployEmitsEvent(t *testing.T) {
	f := newTestFactory()
	in, _ := f.DeployInstance(deployer, salted(1))

	events := f.Events()
	if len(events) != 1 {
		t.Fatalf("event count = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != types.EventInstanceDeployed {
		t.Errorf("event type = %s, want %s", ev.Type, types.EventInstanceDeployed)
	}
	if ev.Actor != deployer {
		t.Errorf("event actor = %s", ev.Actor.Hex())
	}
	if ev.Data != in.Address().Hex() {
		t.Errorf("event data = %q, want deployed address", ev.Data)
	}
}

func TestImplementationHashStable(t *testing.T) {
	f := newTestFactory()
	if f.ImplementationHash() != newTestFactory().ImplementationHash() {
		t.Error("implementation hash differs between identical factories")
	}
	if f.Address() != factoryAddr {
		t.Errorf("factory address = %s", f.Address().Hex())
	}
}
