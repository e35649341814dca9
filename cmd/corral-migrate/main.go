package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/corralhq/corral/pkg/config"
	"github.com/corralhq/corral/pkg/storage"
	"github.com/corralhq/corral/pkg/types"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	seedPath   = flag.String("seed", "", "Inventory YAML to load after migrating")
	dryRun     = flag.Bool("dry-run", false, "Parse and report without writing")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags)
	log.Println("Corral schema migration")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var seed *inventory
	if *seedPath != "" {
		seed, err = loadInventory(*seedPath)
		if err != nil {
			log.Fatalf("Failed to load inventory: %v", err)
		}
		log.Printf("Inventory: %d servers, %d catalog entries, %d groups, %d instances",
			len(seed.Servers), len(seed.Catalog), len(seed.Groups), len(seed.Instances))
	}

	if *dryRun {
		log.Println("Dry run completed. No changes made.")
		return
	}

	store, err := storage.NewGormStore(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	if err := store.AutoMigrate(); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Schema migrated")

	if seed != nil {
		if err := applyInventory(store, seed); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		log.Println("Inventory seeded")
	}
}

type inventory struct {
	Servers []struct {
		Name    string `yaml:"name"`
		Address string `yaml:"address"`
		SSHPort int    `yaml:"ssh_port"`
	} `yaml:"servers"`
	Catalog []struct {
		Name                string `yaml:"name"`
		DefaultPlaybookPath string `yaml:"default_playbook_path"`
		DefaultArtifactURL  string `yaml:"default_artifact_url"`
		DefaultArtifactExt  string `yaml:"default_artifact_ext"`
	} `yaml:"catalog"`
	Groups []struct {
		Name                  string `yaml:"name"`
		Catalog               string `yaml:"catalog"`
		UpdatePlaybookPath    string `yaml:"update_playbook_path"`
		BatchGroupingStrategy string `yaml:"batch_grouping_strategy"`
	} `yaml:"groups"`
	Instances []struct {
		InstanceName       string `yaml:"instance_name"`
		AppType            string `yaml:"app_type"`
		Server             string `yaml:"server"`
		Group              string `yaml:"group"`
		Catalog            string `yaml:"catalog"`
		Version            string `yaml:"version"`
		Image              string `yaml:"image"`
		Tag                string `yaml:"tag"`
		Port               int    `yaml:"port"`
		CustomPlaybookPath string `yaml:"custom_playbook_path"`
	} `yaml:"instances"`
}

func loadInventory(path string) (*inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var inv inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("invalid inventory YAML: %w", err)
	}
	return &inv, nil
}

// applyInventory writes the inventory in dependency order, resolving name
// references between sections.
func applyInventory(store storage.Store, inv *inventory) error {
	servers := make(map[string]int64)
	for _, s := range inv.Servers {
		server := &types.Server{Name: s.Name, Address: s.Address, SSHPort: s.SSHPort}
		if err := store.CreateServer(server); err != nil {
			return fmt.Errorf("server %q: %w", s.Name, err)
		}
		servers[s.Name] = server.ID
	}

	catalogs := make(map[string]int64)
	for _, c := range inv.Catalog {
		entry := &types.CatalogEntry{
			Name:                c.Name,
			DefaultPlaybookPath: c.DefaultPlaybookPath,
			DefaultArtifactURL:  c.DefaultArtifactURL,
			DefaultArtifactExt:  c.DefaultArtifactExt,
		}
		if err := store.CreateCatalogEntry(entry); err != nil {
			return fmt.Errorf("catalog entry %q: %w", c.Name, err)
		}
		catalogs[c.Name] = entry.ID
	}

	groups := make(map[string]int64)
	for _, g := range inv.Groups {
		group := &types.Group{
			Name:                  g.Name,
			UpdatePlaybookPath:    g.UpdatePlaybookPath,
			BatchGroupingStrategy: types.GroupingStrategy(g.BatchGroupingStrategy),
		}
		if g.Catalog != "" {
			id, ok := catalogs[g.Catalog]
			if !ok {
				return fmt.Errorf("group %q references unknown catalog %q", g.Name, g.Catalog)
			}
			group.CatalogID = &id
		}
		if err := store.CreateGroup(group); err != nil {
			return fmt.Errorf("group %q: %w", g.Name, err)
		}
		groups[g.Name] = group.ID
	}

	for _, i := range inv.Instances {
		serverID, ok := servers[i.Server]
		if !ok {
			return fmt.Errorf("instance %q references unknown server %q", i.InstanceName, i.Server)
		}
		inst := &types.Instance{
			InstanceName:       i.InstanceName,
			AppType:            types.AppType(i.AppType),
			ServerID:           serverID,
			Version:            i.Version,
			Image:              i.Image,
			Tag:                i.Tag,
			Port:               i.Port,
			CustomPlaybookPath: i.CustomPlaybookPath,
			Status:             types.InstanceStatusUnknown,
		}
		if i.Group != "" {
			id, ok := groups[i.Group]
			if !ok {
				return fmt.Errorf("instance %q references unknown group %q", i.InstanceName, i.Group)
			}
			inst.GroupID = &id
		}
		if i.Catalog != "" {
			id, ok := catalogs[i.Catalog]
			if !ok {
				return fmt.Errorf("instance %q references unknown catalog %q", i.InstanceName, i.Catalog)
			}
			inst.CatalogID = &id
		}
		if err := store.CreateInstance(inst); err != nil {
			return fmt.Errorf("instance %q: %w", i.InstanceName, err)
		}
	}
	return nil
}
