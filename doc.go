// Package opflow runs a fixed, ordered list of operations across a set of
// independent configurations.
//
// Every configuration passes through every operation in order.  Each
// operation caps the number of configurations running it at once (its
// slots), a failed operation is retried until the error tolerance is
// reached, and a run resumes from completion markers left by earlier runs.
//
//	cfg, _ := opflow.LoadConfig(ctx, "opflow.yaml")
//	srv, _ := opflow.New(cfg)
//	defer srv.Close()
//	summary, err := srv.Run(ctx)
//
// The scheduler lives in service/allocator, the status table in
// runtime/status and the workers in service/processor.
package opflow
