// Package store описывает версионированное блоб-хранилище:
// путь -> (содержимое, тег версии). Тег непрозрачный, выдаёт его
// хранилище; запись со stale-тегом отклоняется. Никаких блокировок —
// конфликт обнаруживается постфактум, решение о повторе за вызывающим.
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("blob not found")
	ErrVersionConflict = errors.New("blob version conflict")
	ErrUnavailable     = errors.New("store unavailable")
)

type Store interface {
	// Get возвращает содержимое и текущий тег версии.
	Get(ctx context.Context, path string) (content []byte, version string, err error)

	// Put записывает блоб. version — тег, полученный при чтении;
	// пустой тег значит create-only (путь обязан отсутствовать).
	// Возвращает новый тег.
	Put(ctx context.Context, path string, content []byte, version string) (string, error)

	// Delete удаляет блоб по тегу. Отсутствующий путь — не ошибка.
	Delete(ctx context.Context, path string, version string) error

	// List возвращает имена записей каталога; пустой список,
	// если каталога нет.
	List(ctx context.Context, dir string) ([]string, error)
}
