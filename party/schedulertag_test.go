package party

import (
	"testing"

	"github.com/pergyra-lang/core/fiber"
)

func TestSchedulerRegistryFallsBackToDefaultCpu(t *testing.T) {
	cpu := fiber.New(fiber.Config{Workers: 1})
	registry := NewSchedulerRegistry(cpu)

	if registry.Resolve(NetworkThread) != cpu {
		t.Fatal("an unregistered tag must fall back to the default CPU scheduler")
	}
	if registry.Resolve(Any) != cpu {
		t.Fatal("Any must resolve to the default CPU scheduler")
	}

	io := fiber.New(fiber.Config{Workers: 1})
	registry.Register(IoFiber, io)
	if registry.Resolve(IoFiber) != io {
		t.Fatal("a registered tag must resolve to its bound scheduler")
	}
	if registry.Resolve(NetworkThread) != cpu {
		t.Fatal("registering IoFiber must not disturb the fallback for other unregistered tags")
	}
}
