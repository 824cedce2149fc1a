package shop

import (
	"context"
	"fmt"
)

// StopCondition determines whether an episode should terminate early.
type StopCondition interface {
	ShouldStop(step int, result StepResult) bool
}

// MaxStepsCondition stops an episode after a fixed number of steps.
type MaxStepsCondition struct {
	MaxSteps int
}

func (c MaxStepsCondition) ShouldStop(step int, _ StepResult) bool {
	return step >= c.MaxSteps
}

// RewardThresholdCondition stops once a single step's reward reaches Threshold.
type RewardThresholdCondition struct {
	Threshold float64
}

func (c RewardThresholdCondition) ShouldStop(_ int, result StepResult) bool {
	return result.Reward >= c.Threshold
}

// Policy chooses the next action given the current observation.
type Policy func(ctx context.Context, observation string) (action string, err error)

// EpisodeConfig holds the parameters for one episode run.
type EpisodeConfig struct {
	MaxSteps       int
	StopConditions []StopCondition
}

// EpisodeStep records one action/observation exchange.
type EpisodeStep struct {
	StepNumber  int
	Action      string
	Observation string
	Reward      float64
	Done        bool
}

// EpisodeResult holds the complete record of a finished episode.
type EpisodeResult struct {
	Steps       []EpisodeStep
	TotalSteps  int
	TotalReward float64
	StoppedBy   string
}

// RunEpisode resets env and alternates policy and environment until the
// environment reports a terminal state, MaxSteps is reached, or a stop
// condition fires.
func RunEpisode(ctx context.Context, env Environment, policy Policy, config EpisodeConfig) (*EpisodeResult, error) {
	observation, err := env.Reset(ctx)
	if err != nil {
		return nil, fmt.Errorf("resetting environment: %w", err)
	}

	result := &EpisodeResult{}
	maxSteps := MaxStepsCondition{MaxSteps: config.MaxSteps}

	for step := 1; ; step++ {
		action, err := policy(ctx, observation)
		if err != nil {
			return nil, fmt.Errorf("episode step %d: policy error: %w", step, err)
		}

		stepResult, err := env.Step(ctx, action)
		if err != nil {
			return nil, fmt.Errorf("episode step %d: environment error: %w", step, err)
		}

		result.Steps = append(result.Steps, EpisodeStep{
			StepNumber:  step,
			Action:      action,
			Observation: stepResult.Observation,
			Reward:      stepResult.Reward,
			Done:        stepResult.Done,
		})
		result.TotalSteps = step
		result.TotalReward += stepResult.Reward

		if stepResult.Done {
			result.StoppedBy = "terminal"
			break
		}
		if config.MaxSteps > 0 && maxSteps.ShouldStop(step, stepResult) {
			result.StoppedBy = "max_steps"
			break
		}

		stopped := false
		for _, cond := range config.StopConditions {
			if cond.ShouldStop(step, stepResult) {
				switch cond.(type) {
				case RewardThresholdCondition:
					result.StoppedBy = "reward_threshold"
				default:
					result.StoppedBy = "condition"
				}
				stopped = true
				break
			}
		}
		if stopped {
			break
		}

		observation = stepResult.Observation
	}

	return result, nil
}
