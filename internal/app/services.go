package app

import (
	"github.com/yungbote/reelforge-backend/internal/automation/claim"
	"github.com/yungbote/reelforge-backend/internal/automation/cron"
	"github.com/yungbote/reelforge-backend/internal/automation/journal"
	"github.com/yungbote/reelforge-backend/internal/automation/pipeline"
	"github.com/yungbote/reelforge-backend/internal/automation/rotation"
	"github.com/yungbote/reelforge-backend/internal/automation/runner"
	"github.com/yungbote/reelforge-backend/internal/automation/schedule"
	"github.com/yungbote/reelforge-backend/internal/data/repos"
	"github.com/yungbote/reelforge-backend/internal/platform/logger"
)

type Services struct {
	Coord    *claim.Coordinator
	Tracker  *rotation.Tracker
	Journal  *journal.Journal
	Schedule *schedule.Calculator
	Executor *pipeline.Executor
	Runner   *runner.Runner
	Cron     *cron.Driver
}

func wireServices(log *logger.Logger, cfg Config, set repos.Set, clients Clients) Services {
	log.Info("Wiring services...")

	coord := claim.New(set.Automations, log)
	tracker := rotation.NewTracker(set.Processed, set.Automations, log)
	j := journal.New(set.Logs, clients.Bus, log)
	sched := schedule.New(cfg.Location)

	exec := pipeline.New(pipeline.Deps{
		Sources:     clients.Sources,
		AI:          clients.AI,
		Local:       clients.Local,
		Transcriber: clients.Transcriber,
		Transformer: clients.Media,
		Publisher:   clients.Publisher,
		Tracker:     tracker,
		Journal:     j,
		Logs:        set.Logs,
		Jobs:        set.Jobs,
		Posts:       set.Posts,
		Owner:       coord,
	}, pipeline.Config{
		ScratchDir: cfg.ScratchDir,
		OutputDir:  cfg.OutputDir,
	}, log)

	run := runner.New(set.Automations, coord, exec, j, sched, clients.Bus, log)
	driver := cron.New(set.Automations, set.Posts, coord, run, clients.Publisher, j, sched, cron.Config{
		StaleAfter: cfg.StaleAfter,
	}, log)

	return Services{
		Coord:    coord,
		Tracker:  tracker,
		Journal:  j,
		Schedule: sched,
		Executor: exec,
		Runner:   run,
		Cron:     driver,
	}
}
