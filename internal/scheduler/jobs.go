// Package scheduler runs user-defined recurring jobs: JSON files under
// <home>/jobs describe a cron expression plus a prompt to hand to the
// engine CLI.
package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// jobSchema constrains job files. Compiled once at package init.
const jobSchema = `{
	"type": "object",
	"required": ["name", "schedule", "prompt"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"schedule": {"type": "string", "minLength": 9},
		"prompt": {"type": "string", "minLength": 1},
		"workspace": {"type": "string"},
		"enabled": {"type": "boolean"}
	},
	"additionalProperties": false
}`

var compiledJobSchema = mustCompileJobSchema()

func mustCompileJobSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(jobSchema))
	if err != nil {
		panic(fmt.Sprintf("unmarshal job schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("job.json", doc); err != nil {
		panic(fmt.Sprintf("add job schema resource: %v", err))
	}
	schema, err := c.Compile("job.json")
	if err != nil {
		panic(fmt.Sprintf("compile job schema: %v", err))
	}
	return schema
}

// Job is one recurring engine invocation.
type Job struct {
	ID        string `json:"-"`
	Name      string `json:"name"`
	Schedule  string `json:"schedule"`
	Prompt    string `json:"prompt"`
	Workspace string `json:"workspace,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// Active reports whether the job should fire. Jobs are enabled unless
// the file says otherwise.
func (j Job) Active() bool {
	return j.Enabled == nil || *j.Enabled
}

// JobsDir returns the job file directory under the shell home.
func JobsDir(homeDir string) string {
	return filepath.Join(homeDir, "jobs")
}

// LoadJobs reads every *.json file in dir. Invalid files are returned
// as errors keyed by filename instead of aborting the whole load; one
// broken job must not take down the rest.
func LoadJobs(dir string) ([]Job, map[string]error, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read jobs dir: %w", err)
	}

	var jobs []Job
	broken := map[string]error{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		job, err := loadJob(path)
		if err != nil {
			broken[entry.Name()] = err
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, broken, nil
}

func loadJob(path string) (Job, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read job file: %w", err)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return Job{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := compiledJobSchema.Validate(doc); err != nil {
		return Job{}, fmt.Errorf("schema validation: %w", err)
	}

	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	if _, err := NextRunTime(job.Schedule, timeNow()); err != nil {
		return Job{}, fmt.Errorf("invalid cron expression %q: %w", job.Schedule, err)
	}
	job.ID = Slugify(job.Name)
	return job, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a stable job id from its name.
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}
