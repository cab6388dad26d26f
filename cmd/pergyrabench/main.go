// Command pergyrabench is a diagnostic/smoke-test binary: it spins up a
// Scheduler, runs a canned three-role party dispatch, and prints timing
// and per-role statistics. It is not a product surface (spec §1's
// Non-goals explicitly exclude a user-facing CLI) — it plays the same
// "integration testing aid" role the teacher's cmd/io REPL plays for
// iolang, and takes its flags the way calvinalkan-agent-task's CLI
// commands do, via github.com/spf13/pflag.
package main

import (
	"fmt"
	"os"
	"runtime"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/pergyra-lang/core/fiber"
	"github.com/pergyra-lang/core/party"
)

func main() {
	workers := flag.Int("workers", 0, "scheduler worker count (0 = number of CPUs)")
	seed := flag.Int64("deterministic-seed", 0, "non-zero to run the scheduler in deterministic mode")
	flag.Parse()

	n := *workers
	if n <= 0 {
		n = runtime.NumCPU()
	}

	sched := fiber.New(fiber.Config{Workers: n, DeterministicSeed: *seed})
	sched.Start()
	defer sched.Stop()

	registry := party.NewSchedulerRegistry(sched)
	dispatcher := party.NewDispatcher(registry, party.DispatcherConfig{
		OnFiberError: func(roleId string, err error) {
			fmt.Fprintf(os.Stderr, "role %s error: %v\n", roleId, err)
		},
	})

	pctx := party.NewPartyContext("bench-party")
	roleIds := []string{"roleA", "roleB", "roleC"}
	for i, id := range roleIds {
		pctx.AddRole(&party.Role{SlotName: id, SlotId: uint32(i + 1), Instance: id, Abilities: []string{"work"}})
	}

	entries := make([]party.FiberMapEntry, len(roleIds))
	for i, id := range roleIds {
		id := id
		entries[i] = party.FiberMapEntry{
			RoleId:         id,
			InstanceSlotId: uint32(i + 1),
			ParallelFn: func(ctx *fiber.Context) (interface{}, error) {
				time.Sleep(10 * time.Millisecond)
				return id, nil
			},
			SchedulerTag: party.CpuFiber,
			Priority:     fiber.Normal,
		}
	}
	fm := party.NewFiberMap("BenchParty", entries, true)

	result, err := dispatcher.DispatchParallel(fm, pctx, party.JoinAll, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dispatch failed:", err)
		os.Exit(1)
	}

	fmt.Printf("allSucceeded=%v totalExecutionTimeNs=%d\n", result.AllSucceeded, result.TotalExecutionTimeNs)
	for _, r := range result.Results {
		stats := dispatcher.Stats(r.RoleId)
		fmt.Printf("  role=%s success=%v durationNs=%d executions=%d avgNs=%d\n",
			r.RoleId, r.Success, r.DurationNs, stats.ExecutionCount, stats.AvgNs)
	}
}
