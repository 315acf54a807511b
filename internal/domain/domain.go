// Package domain holds the core entities shared by every component: Repo,
// Branch, Commit, Build, DeployConfig, DeployConfigVersion and DeployEvent,
// plus the BuildStatus mapping table.
package domain

import "time"

// Repo is a source-forge repository, identified by its forge-assigned
// integer ID. Never deleted once seen.
type Repo struct {
	ID            int64
	Owner         string
	Name          string
	DefaultBranch string
	Private       bool
	Language      string
}

// FullName returns "<owner>/<name>".
func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// Branch is unique by (RepoID, Name). Marked inactive on branch-delete
// events rather than physically removed.
type Branch struct {
	ID            int64
	Name          string
	RepoID        int64
	HeadCommitSHA string
	Active        bool
}

// Commit is unique by (SHA, RepoID).
type Commit struct {
	ID        int64
	SHA       string
	RepoID    int64
	Message   string
	Author    string
	Committer string
	// TimestampMillis is the commit's authored time in epoch milliseconds.
	TimestampMillis int64
}

func (c Commit) Timestamp() time.Time {
	return time.UnixMilli(c.TimestampMillis)
}

// BuildStatus is the coarse outcome of a check run/suite.
type BuildStatus string

const (
	BuildStatusNone    BuildStatus = "None"
	BuildStatusPending BuildStatus = "Pending"
	BuildStatusSuccess BuildStatus = "Success"
	BuildStatusFailure BuildStatus = "Failure"
)

// BuildStatusOf maps a check-suite's (status, conclusion) pair to a
// BuildStatus.
func BuildStatusOf(status, conclusion string) BuildStatus {
	switch status {
	case "queued", "in_progress":
		return BuildStatusPending
	case "completed":
		switch conclusion {
		case "success":
			return BuildStatusSuccess
		case "failure", "timed_out", "action_required":
			return BuildStatusFailure
		case "neutral", "cancelled", "skipped":
			return BuildStatusSuccess
		default:
			return BuildStatusNone
		}
	default:
		return BuildStatusNone
	}
}

// Build is keyed by (RepoID, CommitID, CheckName); at most one row per key.
type Build struct {
	RepoID    int64
	CommitID  int64
	CheckName string
	Status    BuildStatus
	URL       string
	StartedAt *time.Time
	SettledAt *time.Time
}

// ArtifactRef names a repository + branch pair used for artifact tracking.
type ArtifactRef struct {
	Owner  string
	Repo   string
	Branch string
}

// ConfigRef names the repository whose .deploy/ directory defines a
// DeployConfig. Required, unlike ArtifactRef.
type ConfigRef struct {
	Owner string
	Repo  string
}

// DeployConfigStatus is the observed half of a DeployConfig: everything the
// Controller and Config Sync Handler write back, never user-declared.
type DeployConfigStatus struct {
	ArtifactCurrentSHA string
	ArtifactWantedSHA  string
	ArtifactLatestSHA  string
	ArtifactBranch     string

	ConfigOwner string
	ConfigRepo  string
	ConfigSHA   string

	Autodeploy bool
	Orphaned   bool
}

// DeployConfig mirrors the orchestrator custom resource, with Specs carried
// as opaque JSON-shaped values.
type DeployConfig struct {
	// UID is the orchestrator-assigned identity, stable for the object's
	// lifetime. Empty until the object has been created in the orchestrator.
	UID       string
	Name      string
	Namespace string

	Team string
	Kind string

	Artifact *ArtifactRef // optional
	Config   ConfigRef    // required

	// Specs is the list of opaque child resource templates. Written only by
	// the Deploy Action Executor when applying a deploy action, never by the
	// sync handler; the Controller reads it.
	Specs []map[string]any

	Status DeployConfigStatus
}

// QualifiedName is "<team>-<name>", where callers pass the
// .deploy/<name>.yaml file stem as name, see configsync.
func QualifiedName(team, name string) string {
	return team + "-" + name
}

// DeployConfigVersion is a content hash of a DeployConfig's spec at a
// specific (config repo, config commit SHA), used to detect that a
// DeployConfig's definition changed across commits.
type DeployConfigVersion struct {
	Name           string
	ConfigRepoID   int64
	ConfigCommitSHA string
	Hash           string
}

// DeployEvent is an append-only audit row written whenever a Deploy Action
// mutates a DeployConfig.
type DeployEvent struct {
	ID        int64
	Name      string
	Timestamp time.Time
	Initiator string

	ArtifactSHA    string
	ArtifactBranch string
	ConfigSHA      string
	ConfigBranch   string

	PrevArtifactSHA string
	PrevConfigSHA   string

	ArtifactRepoID int64
	ConfigRepoID   int64
}
