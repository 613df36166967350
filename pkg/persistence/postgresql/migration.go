package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE jobs (
				id VARCHAR(64) PRIMARY KEY,
				trace_id VARCHAR(64) NOT NULL,
				config JSONB,
				status VARCHAR(20) NOT NULL,
				trigger_source VARCHAR(20) NOT NULL,
				current_stage VARCHAR(64),
				stage_progress JSONB,
				errors JSONB,
				cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
				run_summary_id VARCHAR(64),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_jobs_status ON jobs(status);
			CREATE INDEX idx_jobs_created_at ON jobs(created_at);

			CREATE TABLE run_summaries (
				id VARCHAR(64) PRIMARY KEY,
				job_id VARCHAR(64) NOT NULL,
				trigger_source VARCHAR(20) NOT NULL,
				status VARCHAR(20) NOT NULL,
				counters JSONB NOT NULL,
				alerts JSONB,
				evaluation JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_ms BIGINT NOT NULL
			);

			CREATE INDEX idx_run_summaries_job_id ON run_summaries(job_id);
		`,
	}
}
