package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/repromitra/telehealth/libs/db"
	"github.com/repromitra/telehealth/libs/pseudonym"
	"github.com/repromitra/telehealth/libs/validate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//go:embed sample_doctors.json
var sampleDoctors []byte

// doctorSeed is one onboarding record. The doctor signs in with Phone; the
// directory entry shares the user id.
type doctorSeed struct {
	Phone             string   `json:"phone"`
	Name              string   `json:"name"`
	Specialization    string   `json:"specialization"`
	Languages         []string `json:"languages"`
	ExperienceYears   int      `json:"experience_years"`
	Gender            string   `json:"gender"`
	Bio               string   `json:"bio"`
	PhotoURL          string   `json:"photo_url"`
	Verified          bool     `json:"verified"`
	AcceptingPatients *bool    `json:"accepting_patients"`
}

func (d *doctorSeed) normalize() error {
	d.Phone = validate.NormalizePhone(d.Phone)
	d.Name = strings.TrimSpace(d.Name)
	d.Specialization = strings.TrimSpace(d.Specialization)
	if !validate.E164(d.Phone) {
		return fmt.Errorf("%q: phone %q is not E.164", d.Name, d.Phone)
	}
	if d.Name == "" || d.Specialization == "" {
		return fmt.Errorf("%s: name and specialization are required", d.Phone)
	}
	if d.ExperienceYears < 0 {
		return fmt.Errorf("%s: experience_years must not be negative", d.Phone)
	}
	langs := make([]string, 0, len(d.Languages))
	for _, l := range d.Languages {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		langs = []string{"English"}
	}
	d.Languages = langs
	if d.AcceptingPatients == nil {
		yes := true
		d.AcceptingPatients = &yes
	}
	return nil
}

func loadDoctors(r io.Reader) ([]doctorSeed, error) {
	var seeds []doctorSeed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seeds); err != nil {
		return nil, fmt.Errorf("decode doctors: %w", err)
	}
	if len(seeds) == 0 {
		return nil, errors.New("no doctors in input")
	}
	seen := map[string]bool{}
	for i := range seeds {
		if err := seeds[i].normalize(); err != nil {
			return nil, err
		}
		if seen[seeds[i].Phone] {
			return nil, fmt.Errorf("duplicate phone %s", seeds[i].Phone)
		}
		seen[seeds[i].Phone] = true
	}
	return seeds, nil
}

func doctorsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "Onboard doctors into auth and the directory",
	}
	cmd.PersistentFlags().String("redis-addr", "", "Redis address; when set the directory cache is invalidated (env TELECARE_REDIS_ADDR)")
	cmd.PersistentFlags().String("cache-key", "directory:doctors", "directory cache key")
	_ = v.BindPFlag("redis-addr", cmd.PersistentFlags().Lookup("redis-addr"))
	_ = v.BindPFlag("cache-key", cmd.PersistentFlags().Lookup("cache-key"))

	var file string
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Upsert doctors from a JSON file (built-in sample set when --file is omitted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = bytes.NewReader(sampleDoctors)
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			seeds, err := loadDoctors(r)
			if err != nil {
				return err
			}
			return applyDoctors(cmd, v, seeds)
		},
	}
	seed.Flags().StringVarP(&file, "file", "f", "", "JSON array of doctors")
	cmd.AddCommand(seed)

	var one doctorSeed
	add := &cobra.Command{
		Use:   "add",
		Short: "Upsert a single doctor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := one.normalize(); err != nil {
				return err
			}
			return applyDoctors(cmd, v, []doctorSeed{one})
		},
	}
	add.Flags().StringVar(&one.Phone, "phone", "", "sign-in phone number (E.164)")
	add.Flags().StringVar(&one.Name, "name", "", "display name")
	add.Flags().StringVar(&one.Specialization, "specialization", "", "specialization")
	add.Flags().StringSliceVar(&one.Languages, "language", nil, "spoken language (repeatable)")
	add.Flags().IntVar(&one.ExperienceYears, "experience", 0, "years of experience")
	add.Flags().StringVar(&one.Gender, "gender", "", "gender")
	add.Flags().StringVar(&one.Bio, "bio", "", "short bio")
	add.Flags().BoolVar(&one.Verified, "verified", false, "mark as verified")
	cmd.AddCommand(add)
	return cmd
}

func applyDoctors(cmd *cobra.Command, v *viper.Viper, seeds []doctorSeed) error {
	err := withPool(cmd, v, func(ctx context.Context, pool *db.Pool) error {
		for _, d := range seeds {
			id, err := upsertDoctor(ctx, pool, d)
			if err != nil {
				return fmt.Errorf("%s: %w", d.Phone, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, d.Name, d.Specialization)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return invalidateDirectory(cmd.Context(), v)
}

// upsertDoctor promotes (or creates) the user behind d.Phone to the doctor
// role and writes the matching directory row in one transaction.
func upsertDoctor(ctx context.Context, pool *db.Pool, d doctorSeed) (string, error) {
	alias, err := pseudonym.Generate()
	if err != nil {
		return "", err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO users (phone, role, pseudonym)
		VALUES ($1, 'doctor', $2)
		ON CONFLICT (phone) DO UPDATE SET role = 'doctor'
		RETURNING id::text
	`, d.Phone, alias).Scan(&id)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO doctors (id, name, specialization, languages, experience_years, gender, bio, photo_url, verified, accepting_patients)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			specialization = EXCLUDED.specialization,
			languages = EXCLUDED.languages,
			experience_years = EXCLUDED.experience_years,
			gender = EXCLUDED.gender,
			bio = EXCLUDED.bio,
			photo_url = EXCLUDED.photo_url,
			verified = EXCLUDED.verified,
			accepting_patients = EXCLUDED.accepting_patients,
			updated_at = now()
	`, id, d.Name, d.Specialization, d.Languages, d.ExperienceYears, d.Gender, d.Bio, d.PhotoURL, d.Verified, *d.AcceptingPatients)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func invalidateDirectory(ctx context.Context, v *viper.Viper) error {
	addr := strings.TrimSpace(v.GetString("redis-addr"))
	if addr == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	if err := rdb.Del(ctx, v.GetString("cache-key")).Err(); err != nil {
		return fmt.Errorf("invalidate directory cache: %w", err)
	}
	return nil
}
