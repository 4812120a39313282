package redis

import (
	"fmt"

	goredis "github.com/go-redis/redis/v7"
)

// schemaVersion is a tri-state: a namespace is either untouched
// (NotInitialized), present under the pre-migration sponsor-only prefix
// (OldFormat), or already at a known schema version.
type schemaVersion int

const (
	schemaNotInitialized schemaVersion = -1
	schemaOldFormat      schemaVersion = 0
)

func getSchemaVersion(client *goredis.Client, legacyPrefix, namespace string) (schemaVersion, error) {
	res, err := getSchemaVersionScript.Run(client, nil, legacyPrefix, namespace).Result()
	if err != nil {
		return 0, fmt.Errorf("get_schema_version: %w", err)
	}
	v, err := toInt64(res)
	if err != nil {
		return 0, err
	}
	return schemaVersion(v), nil
}

type migrationResult struct {
	migrated int64
	skipped  int64
	errored  int64
}

func migrateKeys(client *goredis.Client, legacyPrefix, namespace string) (migrationResult, error) {
	res, err := migrateKeysScript.Run(client, nil, legacyPrefix, namespace).Result()
	if err != nil {
		return migrationResult{}, fmt.Errorf("migrate_keys: %w", err)
	}
	row, ok := res.([]interface{})
	if !ok || len(row) != 3 {
		return migrationResult{}, fmt.Errorf("migrate_keys: unexpected result %#v", res)
	}
	migrated, err := toInt64(row[0])
	if err != nil {
		return migrationResult{}, err
	}
	skipped, err := toInt64(row[1])
	if err != nil {
		return migrationResult{}, err
	}
	errored, err := toInt64(row[2])
	if err != nil {
		return migrationResult{}, err
	}
	return migrationResult{migrated: migrated, skipped: skipped, errored: errored}, nil
}

// maybeMigrate runs at most once per process start, before any other
// storage operation touches the namespace: it renames every key under the
// old unversioned "{sponsor}:*" prefix to the versioned
// "{namespace}:*" layout, skipping any destination key that already
// exists (so a partially-migrated namespace from a crashed prior attempt
// is safe to retry). A namespace that is already versioned, or that has
// never been initialized, is a no-op.
func maybeMigrate(client *goredis.Client, legacyPrefix, namespace string) (migrationResult, error) {
	version, err := getSchemaVersion(client, legacyPrefix, namespace)
	if err != nil {
		return migrationResult{}, err
	}
	switch {
	case version == schemaNotInitialized:
		return migrationResult{}, nil
	case version == schemaOldFormat:
		result, err := migrateKeys(client, legacyPrefix, namespace)
		if err != nil {
			return migrationResult{}, err
		}
		log.Info("migrated redis namespace",
			"legacy_prefix", legacyPrefix,
			"namespace", namespace,
			"migrated", result.migrated,
			"skipped", result.skipped,
			"errored", result.errored)
		return result, nil
	default:
		return migrationResult{}, nil
	}
}
