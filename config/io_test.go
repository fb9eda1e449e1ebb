package config

import (
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/fieldwork/pcmeshfit/testutils"
)

func TestFormatFromPath(t *testing.T) {
	test.That(t, FormatFromPath("fit.json"), test.ShouldEqual, FormatJSON)
	test.That(t, FormatFromPath("fit.YAML"), test.ShouldEqual, FormatYAML)
	test.That(t, FormatFromPath("fit.yml"), test.ShouldEqual, FormatYAML)
	test.That(t, FormatFromPath("step.conf"), test.ShouldEqual, FormatINI)
	test.That(t, FormatFromPath("fit"), test.ShouldEqual, FormatJSON)
}

func TestWriteRead(t *testing.T) {
	cfg := Default()
	cfg.Identifier = "femur"
	cfg.DistanceMode = "DPEP"
	cfg.PCsToFit = 3
	cfg.FitScale = true
	cfg.XTol = 1e-7
	cfg.Landmarks = "top:la,bottom:lb"
	cfg.LandmarkWeights = "1.5,2"

	dir := t.TempDir()
	for _, name := range []string{"fit.json", "fit.yaml", "fit.conf"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			test.That(t, Write(path, cfg), test.ShouldBeNil)
			back, unused, err := Read(path)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, unused, test.ShouldHaveLength, 0)
			test.That(t, back, test.ShouldResemble, cfg)
		})
	}
}

func TestReadLegacy(t *testing.T) {
	t.Run("json with string values", func(t *testing.T) {
		path := testutils.WriteTempFile(t, "step.json", `{
    "identifier": "fit",
    "Distance Mode": "EPDP",
    "PCs to Fit": "4",
    "Fit Scale": "False",
    "GUI": "True",
    "xtol": "1e-6"
}`)
		cfg, _, err := Read(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.PCsToFit, test.ShouldEqual, 4)
		test.That(t, cfg.FitScale, test.ShouldBeFalse)
		test.That(t, cfg.GUI, test.ShouldBeTrue)
		test.That(t, cfg.XTol, test.ShouldEqual, 1e-6)
	})

	t.Run("ini", func(t *testing.T) {
		path := testutils.WriteTempFile(t, "step.conf", `[config]
identifier = fit
Distance Mode = DPEP
PCs to Fit = 2
Fit Scale = True
Landmarks = top:la
Landmark Weights = 3
`)
		cfg, _, err := Read(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.Identifier, test.ShouldEqual, "fit")
		test.That(t, cfg.DistanceMode, test.ShouldEqual, "DPEP")
		test.That(t, cfg.PCsToFit, test.ShouldEqual, 2)
		test.That(t, cfg.FitScale, test.ShouldBeTrue)
		test.That(t, cfg.Landmarks, test.ShouldEqual, "top:la")
		test.That(t, cfg.LandmarkWeights, test.ShouldEqual, "3")
	})

	t.Run("ini without config section", func(t *testing.T) {
		path := testutils.WriteTempFile(t, "step.conf", "[other]\nxtol = 1\n")
		_, _, err := Read(path)
		test.That(t, err, test.ShouldNotBeNil)
	})

	t.Run("environment expansion", func(t *testing.T) {
		t.Setenv("PCMESHFIT_TEST_ID", "from-env")
		path := testutils.WriteTempFile(t, "step.yaml", "identifier: ${PCMESHFIT_TEST_ID}\nPCs to Fit: 5\n")
		cfg, _, err := Read(path)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cfg.Identifier, test.ShouldEqual, "from-env")
		test.That(t, cfg.PCsToFit, test.ShouldEqual, 5)
	})

	t.Run("malformed", func(t *testing.T) {
		path := testutils.WriteTempFile(t, "step.json", `{"PCs to Fit": `)
		_, _, err := Read(path)
		test.That(t, err, test.ShouldNotBeNil)
		_, _, err = Read(filepath.Join(t.TempDir(), "missing.json"))
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestReadCommentedJSON(t *testing.T) {
	path := testutils.WriteTempFile(t, "fit.json", `{
    // hand tuned for the femur scans
    "Distance Mode": "DPEP",
    "PCs to Fit": 2,
    "Mahalanobis Weight": "0.5", /* legacy string value */
}
`)
	cfg, unused, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, unused, test.ShouldHaveLength, 0)
	test.That(t, cfg.DistanceMode, test.ShouldEqual, "DPEP")
	test.That(t, cfg.PCsToFit, test.ShouldEqual, 2)
	test.That(t, cfg.MahalanobisWeight, test.ShouldEqual, 0.5)
	test.That(t, cfg.SurfaceDiscretisation, test.ShouldEqual, Default().SurfaceDiscretisation)
}

func TestReadLandmarkTargets(t *testing.T) {
	path := testutils.WriteTempFile(t, "targets.json", `{"la": [0, 0, 0], "lb": [1, 1, 1]}`)
	targets, err := ReadLandmarkTargets(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, targets, test.ShouldResemble, sampleTargets)

	path = testutils.WriteTempFile(t, "bad.json", `{"la": "here"}`)
	_, err = ReadLandmarkTargets(path)
	test.That(t, err, test.ShouldNotBeNil)

	targets, err = ReadLandmarkTargets(testutils.WriteTempFile(t, "one.json", `{"tip": [1, 2, 3]}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, targets["tip"], test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
}

func TestSchema(t *testing.T) {
	buf, err := SchemaJSON()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(buf), test.ShouldContainSubstring, `"Distance Mode"`)
	test.That(t, string(buf), test.ShouldContainSubstring, `"EPDP"`)
	test.That(t, string(buf), test.ShouldContainSubstring, `"freeze-first"`)
}
