package app

import (
	"context"

	"github.com/IbragimovN/coachlast/internal/config"
	"github.com/IbragimovN/coachlast/internal/storage"
	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// StateReport summarizes a persisted snapshot.
type StateReport struct {
	Driver string
	Path   string
	Users  int
	Goals  int
	Habits int
}

// CheckState loads the configured store without starting anything. It does
// not need a bot token. A corrupt snapshot is returned as an error matching
// storage.ErrCorruptState.
func CheckState(ctx context.Context, cfgPath string, log logx.Logger) (StateReport, error) {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return StateReport{}, err
	}
	sc, err := cfg.StoreConfig()
	if err != nil {
		return StateReport{}, err
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return StateReport{}, err
	}
	defer store.Close()

	st, err := store.Load(ctx)
	if err != nil {
		return StateReport{}, err
	}
	rep := StateReport{Driver: sc.Driver, Path: sc.Path, Users: len(st)}
	if rep.Driver == "" {
		rep.Driver = "file"
	}
	for _, rec := range st {
		rep.Goals += len(rec.Goals)
		rep.Habits += len(rec.Habits)
	}
	return rep, nil
}
