// Package bootstatus 는 워치독 만료 기록을 남겨 다음 attach 가 직전 리셋의
// 원인을 보고할 수 있게 한다.
//
// 기록은 fatal action 직전에 임시 파일, fsync, rename, 상위 디렉터리 fsync
// 순서로 원자적으로 쓰이므로 곧바로 halt 되어도 잘린 파일은 보이지 않는다.
package bootstatus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
)

// Record 는 직전 실행을 끝낸 만료 정보다.
type Record struct {
	Identity   string    `json:"identity"`
	TimeoutSec int       `json:"timeout_sec"`
	Cause      string    `json:"cause"`
	TrippedAt  time.Time `json:"tripped_at"`
}

// Write 는 path 의 기록을 원자적으로 교체한다.
func Write(path string, record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling boot status: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary boot status file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary boot status file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary boot status file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary boot status file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf("renaming boot status file into place: %w", err)
	}

	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

// Read 는 path 의 기록을 읽는다. 파일이 없으면 os.ErrNotExist 를 감싼 에러를
// 반환한다.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("parsing boot status file %s: %w", path, err)
	}
	return record, nil
}

// Take 는 기록을 읽고 삭제한다. 기록이 없으면 false 를 반환한다.
func Take(path string) (Record, bool, error) {
	record, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	if err := Clear(path); err != nil {
		return record, true, err
	}
	return record, true, nil
}

// Clear 는 기록을 삭제한다. 파일이 없어도 에러가 아니다.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing boot status file: %w", err)
	}
	return nil
}
