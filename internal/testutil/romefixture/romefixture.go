// Package romefixture builds a small ROME release for tests: two Rome
// entries with their cards, a handful of leaf entities and an arborescence
// with two referentials. Documents are encoded in ISO-8859-15 like the
// published files.
package romefixture

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"
	"testing/fstest"

	"golang.org/x/text/encoding/charmap"

	"romeetl/internal/config"
	"romeetl/internal/loader"
	"romeetl/internal/storage"
	_ "romeetl/internal/storage/sqlite"
)

// Release holds the UTF-8 text of every document, keyed like config.Files.
type Release struct {
	Activite     string
	Appellation  string
	EnvTravail   string
	Competence   string
	Rome         string
	Fiche        string
	Arborescence string
}

const prolog = `<?xml version="1.0" encoding="ISO-8859-15"?>` + "\n"

// Default returns the reference release.
//
// Rome 1 (A1101) links appellation 7 with priorisation 1, environment 300,
// base activity 100, competences 200 and 201, a specific bloc 1 holding
// activity 101 and competence 201, and a close mobility to A1201. Rome 2
// (A1201) links appellation 8 and has an evolution mobility to A1101.
//
// The arborescence has referential "R1" (root 1000, appellation leaves) and
// "R2" (root 2000, Rome leaves). Children appear before their parents.
func Default() Release {
	return Release{
		Activite: prolog + `<activites>
  <activite><code_ogr>100</code_ogr><libelle_activite>Conduire un engin agricole</libelle_activite><libelle>Conduite</libelle><libelle_application>Conduite d'engins</libelle_application><libelle_en_tete_rgpmt></libelle_en_tete_rgpmt><libelle_impression>Conduite</libelle_impression></activite>
  <activite><code_ogr>101</code_ogr><libelle_activite>Élaguer des arbres</libelle_activite><libelle>Élagage</libelle></activite>
</activites>`,
		Appellation: prolog + `<appellations>
  <appellation><code_ogr>7</code_ogr><libelle_appellation>Agent / Agente de culture</libelle_appellation><libelle>Agent de culture</libelle><libelle_court>Agent de culture</libelle_court></appellation>
  <appellation><code_ogr>8</code_ogr><libelle_appellation>Bûcheron / Bûcheronne</libelle_appellation><libelle>Bûcheron</libelle><libelle_court>Bûcheron</libelle_court></appellation>
</appellations>`,
		EnvTravail: prolog + `<env_travails>
  <env_travail><code_ogr>300</code_ogr><libelle_env_travail>Exploitation agricole</libelle_env_travail><libelle>Exploitation</libelle></env_travail>
</env_travails>`,
		Competence: prolog + `<competences>
  <competence><code_ogr>200</code_ogr><libelle_competence>Mécanique agricole</libelle_competence><libelle>Mécanique</libelle></competence>
  <competence><code_ogr>201</code_ogr><libelle_competence>Entretenir un engin</libelle_competence><libelle>Entretien</libelle></competence>
</competences>`,
		Rome: prolog + `<romes>
  <rome><code_ogr>1</code_ogr><code_rome>A1101</code_rome><libelle>Conduite d'engins agricoles et forestiers</libelle></rome>
  <rome><code_ogr>2</code_ogr><code_rome>A1201</code_rome><libelle>Bûcheronnage et élagage</libelle></rome>
</romes>`,
		Fiche: prolog + `<fiches_emploi_metier>
  <fiche_emploi_metier>
    <numero>1</numero>
    <bloc_code_rome><code_rome>A1101</code_rome><code_ogr>1</code_ogr></bloc_code_rome>
    <definition>Réalise des travaux mécanisés agricoles.</definition>
    <formations_associees>CAP agricole</formations_associees>
    <condition_exercice_activite>En extérieur, prime de 100 €.</condition_exercice_activite>
    <classement_emploi_metier></classement_emploi_metier>
    <appellation>
      <item_app><code_ogr>7</code_ogr><libelle_appellation>Agent / Agente de culture</libelle_appellation><priorisation>1</priorisation></item_app>
    </appellation>
    <environnement_de_travail>
      <item_env><code_ogr>300</code_ogr><priorisation>2</priorisation></item_env>
    </environnement_de_travail>
    <les_activites_de_base>
      <activite_de_base>
        <item_ab><code_ogr>100</code_ogr><position>1</position><priorisation>1</priorisation></item_ab>
      </activite_de_base>
      <savoir_theorique_et_proceduraux>
        <item_ab><code_ogr>200</code_ogr><position>1</position><priorisation>1</priorisation></item_ab>
      </savoir_theorique_et_proceduraux>
      <savoir_action>
        <item_ab><code_ogr>201</code_ogr><position>2</position><priorisation>1</priorisation></item_ab>
      </savoir_action>
    </les_activites_de_base>
    <les_activites_specifique>
      <bloc_activite>
        <position_bloc>1</position_bloc>
        <activite_specifique>
          <item_as><code_ogr>101</code_ogr><position>1</position><priorisation>2</priorisation></item_as>
        </activite_specifique>
        <savoir_action>
          <item_as><code_ogr>201</code_ogr><position>1</position><priorisation>2</priorisation></item_as>
        </savoir_action>
      </bloc_activite>
    </les_activites_specifique>
    <les_mobilites>
      <proche>
        <item_mob><code_rome_cible>A1201 Bûcheronnage et élagage</code_rome_cible></item_mob>
      </proche>
    </les_mobilites>
  </fiche_emploi_metier>
  <fiche_emploi_metier>
    <numero>2</numero>
    <bloc_code_rome><code_rome>A1201</code_rome><code_ogr>2</code_ogr></bloc_code_rome>
    <definition>Abat et élague des arbres.</definition>
    <appellation>
      <item_app><code_ogr>8</code_ogr><priorisation>1</priorisation></item_app>
    </appellation>
    <les_mobilites>
      <si_evolution>
        <item_mob><code_rome_cible>A1101 Conduite d'engins agricoles et forestiers</code_rome_cible></item_mob>
      </si_evolution>
    </les_mobilites>
  </fiche_emploi_metier>
</fiches_emploi_metier>`,
		Arborescence: prolog + `<arborescence>
  <item_arborescence><code_ogr>1002</code_ogr><code_noeud>R1.A.1</code_noeud><code_pere>R1.A</code_pere><code_item_arbor_associe>7</code_item_arbor_associe><libelle_referentiel>R1</libelle_referentiel><libelle_noeud>FEUILLE</libelle_noeud><libelle>Agent de culture</libelle></item_arborescence>
  <item_arborescence><code_ogr>1003</code_ogr><code_noeud>R1.A.2</code_noeud><code_pere>R1.A</code_pere><code_item_arbor_associe>8</code_item_arbor_associe><libelle_referentiel>R1</libelle_referentiel><libelle_noeud>FEUILLE</libelle_noeud><libelle>Bûcheron</libelle></item_arborescence>
  <item_arborescence><code_ogr>1001</code_ogr><code_noeud>R1.A</code_noeud><code_pere>R1</code_pere><code_item_arbor_associe>0</code_item_arbor_associe><libelle_referentiel>R1</libelle_referentiel><libelle_noeud>NOEUD</libelle_noeud><libelle>Agriculture</libelle></item_arborescence>
  <item_arborescence><code_ogr>1000</code_ogr><code_noeud>R1</code_noeud><code_pere></code_pere><code_item_arbor_associe></code_item_arbor_associe><libelle_referentiel>R1</libelle_referentiel><libelle_noeud>RACINE</libelle_noeud><libelle>Appellations</libelle></item_arborescence>
  <item_arborescence><code_ogr>2000</code_ogr><code_noeud>R2</code_noeud><code_pere> </code_pere><code_item_arbor_associe>0</code_item_arbor_associe><libelle_referentiel>R2</libelle_referentiel><libelle_noeud>RACINE</libelle_noeud><libelle>Métiers</libelle></item_arborescence>
  <item_arborescence><code_ogr>2003</code_ogr><code_noeud>R2.A</code_noeud><code_pere>R2</code_pere><code_item_arbor_associe>0</code_item_arbor_associe><libelle_referentiel>R2</libelle_referentiel><libelle_noeud>NOEUD</libelle_noeud><libelle>Agriculture et forêt</libelle></item_arborescence>
  <item_arborescence><code_ogr>2001</code_ogr><code_noeud>R2.A.1</code_noeud><code_pere>R2.A</code_pere><code_item_arbor_associe>1</code_item_arbor_associe><libelle_referentiel>R2</libelle_referentiel><libelle_noeud>FEUILLE</libelle_noeud><libelle>A1101</libelle></item_arborescence>
  <item_arborescence><code_ogr>2002</code_ogr><code_noeud>R2.A.2</code_noeud><code_pere>R2.A</code_pere><code_item_arbor_associe>2</code_item_arbor_associe><libelle_referentiel>R2</libelle_referentiel><libelle_noeud>FEUILLE</libelle_noeud><libelle>A1201</libelle></item_arborescence>
</arborescence>`,
	}
}

// Files returns the member names the release is stored under.
func Files() config.Files { return config.DefaultFiles() }

func (r Release) members() map[string]string {
	f := Files()
	return map[string]string{
		f.Activite:     r.Activite,
		f.Appellation:  r.Appellation,
		f.EnvTravail:   r.EnvTravail,
		f.Competence:   r.Competence,
		f.Rome:         r.Rome,
		f.Fiche:        r.Fiche,
		f.Arborescence: r.Arborescence,
	}
}

// Encode converts UTF-8 text to ISO-8859-15.
func Encode(tb testing.TB, s string) []byte {
	tb.Helper()
	b, err := charmap.ISO8859_15.NewEncoder().Bytes([]byte(s))
	if err != nil {
		tb.Fatalf("encode latin-9: %v", err)
	}
	return b
}

// FS returns the release as an in-memory file system.
func (r Release) FS(tb testing.TB) fstest.MapFS {
	tb.Helper()
	fsys := fstest.MapFS{}
	for name, text := range r.members() {
		fsys[name] = &fstest.MapFile{Data: Encode(tb, text)}
	}
	return fsys
}

// Zip returns the release as zip archive bytes.
func (r Release) Zip(tb testing.TB) []byte {
	tb.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, text := range r.members() {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(Encode(tb, text)); err != nil {
			tb.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// OpenSQLite opens an empty in-memory SQLite repository closed at test end.
func OpenSQLite(tb testing.TB) storage.Repository {
	tb.Helper()
	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: ":memory:"})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(repo.Close)
	return repo
}

// Load loads r into a fresh in-memory SQLite repository.
func (r Release) Load(tb testing.TB) storage.Repository {
	tb.Helper()
	repo := OpenSQLite(tb)
	l := &loader.Loader{BatchSize: 2, Job: "test"}
	src := loader.Source{FS: r.FS(tb), Name: "fixture.zip", Checksum: "0000000000000000"}
	if err := l.Run(context.Background(), repo, src, Files(), false); err != nil {
		tb.Fatalf("load fixture: %v", err)
	}
	return repo
}
