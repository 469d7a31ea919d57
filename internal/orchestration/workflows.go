package orchestration

import (
	"encoding/json"
	"strconv"
)

// ComputationWorkflow fans out defaultFanOut heavy_computation tasks and
// waits for all of them. The start input may carry a bare int overriding
// the task count.
func ComputationWorkflow(defaultFanOut int) WorkflowFunc {
	return func(c *Context) error {
		n := defaultFanOut
		if len(c.Input()) > 0 {
			var override int
			if err := json.Unmarshal(c.Input(), &override); err == nil && override > 0 {
				n = override
			}
		}
		futures := make([]*Future, 0, n)
		for i := 0; i < n; i++ {
			futures = append(futures, c.CallActivity("heavy_computation", i))
		}
		c.AwaitAll(futures...)
		return nil
	}
}

// HelloCitiesWorkflow greets a handful of cities in parallel.
func HelloCitiesWorkflow(cities int) WorkflowFunc {
	return func(c *Context) error {
		futures := make([]*Future, 0, cities)
		for i := 1; i <= cities; i++ {
			futures = append(futures, c.CallActivity("hello", cityName(i)))
		}
		c.AwaitAll(futures...)
		return nil
	}
}

func cityName(i int) string {
	// deterministic: derived only from the loop counter
	return "City " + strconv.Itoa(i)
}
