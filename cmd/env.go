package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadqual/internal/market"
	"github.com/sells-group/leadqual/internal/objstore"
	"github.com/sells-group/leadqual/internal/scorer"
	"github.com/sells-group/leadqual/internal/store"
	"github.com/sells-group/leadqual/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initObjects(ctx context.Context) (objstore.Store, error) {
	if cfg.Object.Bucket == "" {
		return nil, eris.New("object bucket is required (LEADQUAL_OBJECT_BUCKET)")
	}
	return objstore.NewS3(ctx, cfg.Object)
}

func initEngine() (*scorer.Engine, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (LEADQUAL_ANTHROPIC_KEY)")
	}
	return scorer.NewEngine(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic), nil
}

func initCalibrator(ctx context.Context, st store.Store) (*market.Calibrator, error) {
	cal := market.NewCalibrator(st)
	if err := cal.Refresh(ctx); err != nil {
		return nil, eris.Wrap(err, "refresh market calibration")
	}
	return cal, nil
}
