// Reef is a Conan package repository service.
// Copyright (C) 2025 Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package revision

import (
	"context"

	"reef/internal/lock"
	"reef/internal/storage"
)

// PackageIndex is the typed façade over one package coordinate
// (name/version/user/channel). The add and remove mutators take the lock
// of the index file they touch; UpdateRecipeIndex and FullIndexUpdate take
// the package lock; UpdateBinaryIndex takes no lock; readers do not lock.
type PackageIndex struct {
	pkg     string
	index   *Index
	indexer *Indexer
	full    *FullIndexer
	locks   lock.Locker
}

// NewPackageIndex creates the façade for a package coordinate.
func NewPackageIndex(store storage.Storage, locks lock.Locker, pkg string, concurrency int) *PackageIndex {
	indexer := NewIndexer(store, concurrency)
	return &PackageIndex{
		pkg:     pkg,
		index:   NewIndex(store, locks),
		indexer: indexer,
		full:    NewFullIndexer(indexer, locks),
		locks:   locks,
	}
}

// Coordinate returns the package coordinate the façade is keyed by.
func (p *PackageIndex) Coordinate() string {
	return p.pkg
}

func (p *PackageIndex) recipeIndexPath() string {
	return IndexPath(p.pkg)
}

func (p *PackageIndex) binaryIndexPath(recipeRev int, hash string) string {
	return IndexPath(BinaryRoot(p.pkg, recipeRev, hash))
}

// UpdateRecipeIndex rebuilds the recipe revisions index under the package
// lock.
func (p *PackageIndex) UpdateRecipeIndex(ctx context.Context) ([]int, error) {
	lease, err := p.locks.Acquire(ctx, p.pkg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lease.Release() }()

	return p.indexer.Build(ctx, p.pkg, RecipeManifest, func(name string, r int) string {
		return RecipeFile(p.pkg, r, name)
	})
}

// UpdateBinaryIndex rebuilds the binary revisions index of one
// (recipe revision, hash) pair.
func (p *PackageIndex) UpdateBinaryIndex(ctx context.Context, recipeRev int, hash string) ([]int, error) {
	root := BinaryRoot(p.pkg, recipeRev, hash)
	return p.indexer.Build(ctx, root, BinaryManifest, func(name string, b int) string {
		return BinaryFile(root, b, name)
	})
}

// AddRecipeRevision records a recipe revision in the index.
func (p *PackageIndex) AddRecipeRevision(ctx context.Context, rev int) error {
	return p.index.Add(ctx, rev, p.recipeIndexPath())
}

// RemoveRecipeRevision deletes a recipe revision from the index,
// reporting whether it was present.
func (p *PackageIndex) RemoveRecipeRevision(ctx context.Context, rev int) (bool, error) {
	return p.index.Remove(ctx, rev, p.recipeIndexPath())
}

// RecipeRevisions returns the recipe revisions in index order.
func (p *PackageIndex) RecipeRevisions(ctx context.Context) ([]int, error) {
	return p.index.List(ctx, p.recipeIndexPath())
}

// LastRecipeRevision returns the highest recipe revision, -1 when none.
func (p *PackageIndex) LastRecipeRevision(ctx context.Context) (int, error) {
	return p.index.Last(ctx, p.recipeIndexPath())
}

// AddBinaryRevision records a binary revision under the given recipe
// revision and package hash.
func (p *PackageIndex) AddBinaryRevision(ctx context.Context, recipeRev int, hash string, rev int) error {
	return p.index.Add(ctx, rev, p.binaryIndexPath(recipeRev, hash))
}

// RemoveBinaryRevision deletes a binary revision, reporting whether it
// was present.
func (p *PackageIndex) RemoveBinaryRevision(ctx context.Context, recipeRev int, hash string, rev int) (bool, error) {
	return p.index.Remove(ctx, rev, p.binaryIndexPath(recipeRev, hash))
}

// BinaryRevisions returns the binary revisions of one (recipe revision,
// hash) pair in index order.
func (p *PackageIndex) BinaryRevisions(ctx context.Context, recipeRev int, hash string) ([]int, error) {
	return p.index.List(ctx, p.binaryIndexPath(recipeRev, hash))
}

// LastBinaryRevision returns the highest binary revision, -1 when none.
func (p *PackageIndex) LastBinaryRevision(ctx context.Context, recipeRev int, hash string) (int, error) {
	return p.index.Last(ctx, p.binaryIndexPath(recipeRev, hash))
}

// PackageList returns the binary package hashes below a recipe revision.
func (p *PackageIndex) PackageList(ctx context.Context, recipeRev int) ([]string, error) {
	return p.indexer.ListPackages(ctx, PackageDir(p.pkg, recipeRev))
}

// FullIndexUpdate rebuilds every index below the package coordinate and
// returns the recipe revisions.
func (p *PackageIndex) FullIndexUpdate(ctx context.Context) ([]int, error) {
	return p.full.Update(ctx, p.pkg)
}
